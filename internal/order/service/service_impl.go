package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/observability/tracing"
	"github.com/smallbiznis/coursepay/internal/order/domain"
	promodomain "github.com/smallbiznis/coursepay/internal/promo/domain"
	"github.com/smallbiznis/coursepay/internal/signature"
	dbpkg "github.com/smallbiznis/coursepay/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxInvoiceIDAttempts = 16

	ShpEmail   = "Shp_email"
	ShpProduct = "Shp_product"
	ShpPromo   = "Shp_promo"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Catalog    domain.Catalog
	Repo       domain.Repository
	PromoSvc   promodomain.Service
	InvoiceIDs InvoiceIDGenerator `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	gateway    config.GatewayConfig
	promoOn    bool
	catalog    domain.Catalog
	repo       domain.Repository
	promoSvc   promodomain.Service
	invoiceIDs InvoiceIDGenerator
}

func NewService(p Params) domain.Service {
	gen := p.InvoiceIDs
	if gen == nil {
		gen = RandomInvoiceID
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		clock:      p.Clock,
		gateway:    p.Config.Gateway,
		promoOn:    p.Config.Promo.Enabled,
		catalog:    p.Catalog,
		repo:       p.Repo,
		promoSvc:   p.PromoSvc,
		invoiceIDs: gen,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Checkout, error) {
	ctx, span := tracing.Start(ctx, "order.create",
		attribute.String("product_code", req.ProductCode),
		attribute.Bool("promo", strings.TrimSpace(req.PromoCode) != ""),
	)
	defer span.End()

	checkout, err := s.createOrder(ctx, req)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("invoice_id", checkout.InvoiceID))
	return checkout, nil
}

func (s *Service) createOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Checkout, error) {
	if s.gateway.MerchantLogin == "" || s.gateway.Password1 == "" {
		return nil, domain.ErrGatewayNotReady
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	priced, err := s.price(ctx, email, req.ProductCode, req.PromoCode)
	if err != nil {
		return nil, err
	}
	amount := domain.FormatAmount(priced.final)

	order := &domain.Order{
		Email:       email,
		ProductCode: priced.product.Code,
		Amount:      amount,
		Status:      domain.StatusPending,
		Source:      domain.SourceCheckout,
		CreatedAt:   s.clock.Now(),
	}

	var encodedReceipt string
	if s.gateway.ReceiptEnabled {
		raw, encoded, err := buildReceipt(s.gateway, priced.product, amount)
		if err != nil {
			return nil, fmt.Errorf("build receipt: %w", err)
		}
		order.Receipt = datatypes.JSON(raw)
		encodedReceipt = encoded
	}

	if priced.promo != nil {
		code := priced.promo.Code
		discount := domain.FormatAmount(priced.promo.Discount())
		order.PromoCode = &code
		order.PromoDiscount = &discount
	}

	if err := s.insertWithFreshInvoiceID(ctx, order); err != nil {
		return nil, err
	}

	invID := strconv.FormatInt(order.InvoiceID, 10)
	shp := map[string]string{
		ShpEmail:   email,
		ShpProduct: priced.product.Code,
	}
	if order.PromoCode != nil {
		shp[ShpPromo] = *order.PromoCode
	}

	sig := signature.SignInitiate(
		s.gateway.MerchantLogin,
		amount,
		invID,
		encodedReceipt,
		shp,
		s.gateway.Password1,
		s.gateway.Algorithm,
	)

	params := map[string]string{
		"MerchantLogin":  s.gateway.MerchantLogin,
		"OutSum":         amount,
		"InvId":          invID,
		"Description":    s.description(priced.product),
		"SignatureValue": sig,
		"Email":          email,
		"Culture":        s.gateway.Culture,
		"Encoding":       s.gateway.Encoding,
		"SuccessURL":     s.gateway.SuccessURL,
		"FailURL":        s.gateway.FailURL,
	}
	if encodedReceipt != "" {
		params["Receipt"] = encodedReceipt
	}
	if s.gateway.TestMode {
		params["IsTest"] = "1"
	}
	for k, v := range shp {
		params[k] = v
	}

	s.log.Info("order created",
		zap.Int64("invoice_id", order.InvoiceID),
		zap.String("product", priced.product.Code),
		zap.String("amount", amount),
		zap.Bool("promo", order.PromoCode != nil),
	)

	return &domain.Checkout{
		Endpoint:  s.gateway.Endpoint,
		Params:    params,
		InvoiceID: order.InvoiceID,
	}, nil
}

// Quote needs the buyer's email: per-email promo caps are checked against it,
// so a quote without one could promise a discount checkout refuses.
func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	priced, err := s.price(ctx, email, req.ProductCode, req.PromoCode)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		Product:    priced.product,
		BaseAmount: domain.FormatAmount(priced.base),
		Amount:     domain.FormatAmount(priced.final),
	}
	if priced.promo != nil {
		quote.PromoCode = priced.promo.Code
		quote.PromoType = string(priced.promo.Type)
		quote.PromoValue = priced.promo.Value.String()
	}
	return quote, nil
}

func (s *Service) FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (*domain.Order, error) {
	if db == nil {
		db = s.db
	}
	return s.repo.FindByInvoiceID(ctx, db, invoiceID)
}

// CreateFromWebhook records an order the gateway confirmed but this store
// never issued. The incoming amount is taken as is since the signature has
// already been verified.
func (s *Service) CreateFromWebhook(ctx context.Context, tx *gorm.DB, req domain.WebhookOrderRequest) (*domain.Order, error) {
	if req.InvoiceID < 1 || req.InvoiceID > MaxInvoiceID {
		return nil, domain.ErrInvalidInvoiceID
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || amount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	productCode := strings.TrimSpace(req.ProductCode)
	if productCode == "" {
		productCode = s.catalog.DefaultProductCode()
	}

	order := &domain.Order{
		InvoiceID:   req.InvoiceID,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		ProductCode: productCode,
		Amount:      domain.FormatAmount(amount),
		Status:      domain.StatusPending,
		Source:      domain.SourceWebhook,
		CreatedAt:   s.clock.Now(),
	}
	if code := strings.ToUpper(strings.TrimSpace(req.PromoCode)); code != "" {
		order.PromoCode = &code
	}

	if err := s.repo.Insert(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("insert webhook order: %w", err)
	}
	s.log.Warn("order created from webhook",
		zap.Int64("invoice_id", order.InvoiceID),
		zap.String("amount", order.Amount),
	)
	return order, nil
}

func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, invoiceID int64) (bool, error) {
	return s.repo.MarkPaid(ctx, tx, invoiceID, s.clock.Now())
}

type pricing struct {
	product config.Product
	base    decimal.Decimal
	final   decimal.Decimal
	promo   *promodomain.Validation
}

func (s *Service) price(ctx context.Context, email, productCode, promoCode string) (*pricing, error) {
	code := strings.TrimSpace(productCode)
	if code == "" {
		code = s.catalog.DefaultProductCode()
	}
	product, ok := s.catalog.Product(code)
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	base, err := decimal.NewFromString(strings.TrimSpace(product.Price))
	if err != nil {
		return nil, fmt.Errorf("catalog price for %s: %w", product.Code, err)
	}

	result := &pricing{product: product, base: base, final: base}

	promoCode = strings.TrimSpace(promoCode)
	if promoCode == "" || !s.promoOn {
		return result, nil
	}

	validation, err := s.promoSvc.Validate(ctx, promodomain.ValidateRequest{
		Code:       promoCode,
		Email:      email,
		BaseAmount: base,
	})
	if err != nil {
		return nil, err
	}
	if !validation.OK {
		return nil, &domain.PromoError{Reason: validation.Reason}
	}

	result.final = validation.FinalAmount
	result.promo = validation
	return result, nil
}

func (s *Service) insertWithFreshInvoiceID(ctx context.Context, order *domain.Order) error {
	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < maxInvoiceIDAttempts; attempt++ {
		id, err := s.invoiceIDs()
		if err != nil {
			return fmt.Errorf("generate invoice id: %w", err)
		}
		if id < 1 || id > MaxInvoiceID {
			continue
		}

		exists, err := s.repo.ExistsByInvoiceID(ctx, db, id)
		if err != nil {
			return err
		}
		if exists {
			s.log.Debug("invoice id collision", zap.Int64("invoice_id", id))
			continue
		}

		order.InvoiceID = id
		if err := s.repo.Insert(ctx, db, order); err != nil {
			if dbpkg.IsDuplicateKeyErr(err) {
				continue
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	}
	return domain.ErrInvoiceIDExhausted
}

func (s *Service) description(product config.Product) string {
	if d := strings.TrimSpace(s.gateway.Description); d != "" {
		return d
	}
	return product.Name
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if addr.Name != "" {
		return "", errors.New("display names are not accepted")
	}
	return strings.ToLower(addr.Address), nil
}
