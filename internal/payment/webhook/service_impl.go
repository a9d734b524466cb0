package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/coursepay/internal/access/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"github.com/smallbiznis/coursepay/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/coursepay/internal/order/domain"
	"github.com/smallbiznis/coursepay/internal/payment/adapters/robokassa"
	paymentdomain "github.com/smallbiznis/coursepay/internal/payment/domain"
	promodomain "github.com/smallbiznis/coursepay/internal/promo/domain"
	"github.com/smallbiznis/coursepay/internal/providers/email"
	dbpkg "github.com/smallbiznis/coursepay/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ShpEmail   = "Shp_email"
	ShpProduct = "Shp_product"
	ShpPromo   = "Shp_promo"

	accessTemplate = "course_access"
	accessSubject  = "Your course access"
)

var (
	// errAlreadySettled rolls back a settlement that lost the race to a
	// concurrent delivery.
	errAlreadySettled = errors.New("already_settled")
	// errDuplicateDelivery is a verified notification for an invoice that is
	// already paid. It is acknowledged and changes nothing.
	errDuplicateDelivery = errors.New("duplicate_delivery")
)

const resultDuplicate = "duplicate"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    paymentdomain.Repository
	Orders  orderdomain.Service
	Access  accessdomain.Service
	Promo   promodomain.Service
	Mailer  email.Provider
	Locker  promodomain.SettlementLocker `optional:"true"`
	Metrics *metrics.Metrics             `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    paymentdomain.Repository
	orders  orderdomain.Service
	access  accessdomain.Service
	promo   promodomain.Service
	mailer  email.Provider
	locker  promodomain.SettlementLocker
	metrics *metrics.Metrics
	adapter *robokassa.Adapter

	magicLinkBase string
	promoEnabled  bool
}

func NewService(p Params) paymentdomain.Reconciler {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.webhook"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		orders:  p.Orders,
		access:  p.Access,
		promo:   p.Promo,
		mailer:  p.Mailer,
		locker:  p.Locker,
		metrics: p.Metrics,
		adapter: robokassa.NewAdapter(p.Config.Gateway.Password2, p.Config.Gateway.Algorithm),

		magicLinkBase: strings.TrimRight(p.Config.BaseURL, "/") + p.Config.Access.MagicLinkPath,
		promoEnabled:  p.Config.Promo.Enabled,
	}
}

// settlement carries what the notification step needs after commit.
type settlement struct {
	invoiceID   int64
	provisioned *accessdomain.Provisioned
	link        *accessdomain.MagicLinkToken
}

func (s *Service) HandleResult(ctx context.Context, params url.Values) paymentdomain.Result {
	ctx, span := tracing.Start(ctx, "payment.webhook.result")
	defer span.End()

	n, err := s.adapter.Parse(params)
	if err != nil {
		return s.finish(ctx, nil, params, err)
	}
	span.SetAttributes(attribute.Int64("invoice_id", n.InvoiceID))

	if err := s.adapter.Verify(n); err != nil {
		s.log.Warn("result signature mismatch", zap.Int64("invoice_id", n.InvoiceID))
		return s.finish(ctx, nil, params, err)
	}

	settled, err := s.reconcile(ctx, n)
	if errors.Is(err, errDuplicateDelivery) {
		span.SetAttributes(attribute.Bool("duplicate", true))
	} else if err != nil {
		tracing.Fail(span, err)
	}
	res := s.finish(ctx, n, params, err)

	if settled != nil {
		s.notify(ctx, settled)
	}
	return res
}

func (s *Service) reconcile(ctx context.Context, n *paymentdomain.ResultNotification) (*settlement, error) {
	order, err := s.orders.FindByInvoiceID(ctx, nil, n.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	recipient := robokassa.Shp(n, ShpEmail)
	if recipient == "" {
		recipient = n.AltEmail
	}
	if recipient == "" && order != nil {
		recipient = order.Email
	}
	if recipient == "" {
		return nil, paymentdomain.ErrEmailMissing
	}

	if order != nil {
		if !orderdomain.AmountsMatch(order.Amount, n.OutSum) {
			s.log.Warn("result amount mismatch",
				zap.Int64("invoice_id", n.InvoiceID),
				zap.String("stored", order.Amount),
				zap.String("incoming", n.OutSum),
			)
			return nil, paymentdomain.ErrAmountMismatch
		}
		if order.IsPaid() {
			s.log.Info("duplicate result for paid order", zap.Int64("invoice_id", n.InvoiceID))
			return nil, errDuplicateDelivery
		}
	}

	release, err := s.lockPromo(ctx, order, n)
	if err != nil {
		return nil, err
	}

	var settled *settlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order == nil {
			order, err = s.orders.CreateFromWebhook(ctx, tx, orderdomain.WebhookOrderRequest{
				InvoiceID:   n.InvoiceID,
				Email:       recipient,
				Amount:      n.OutSum,
				ProductCode: robokassa.Shp(n, ShpProduct),
				PromoCode:   robokassa.Shp(n, ShpPromo),
			})
			if dbpkg.IsDuplicateKeyErr(err) {
				// A concurrent delivery inserted the order after our lookup.
				return errAlreadySettled
			}
			if err != nil {
				return err
			}
		}

		provisioned, err := s.access.Provision(ctx, tx, recipient)
		if err != nil {
			return err
		}
		link, err := s.access.IssueMagicLink(ctx, tx, provisioned.UserID)
		if err != nil {
			return err
		}
		if err := s.access.GrantAccess(ctx, tx, provisioned.UserID); err != nil {
			return err
		}

		flipped, err := s.orders.MarkPaid(ctx, tx, n.InvoiceID)
		if err != nil {
			return err
		}
		if !flipped {
			return errAlreadySettled
		}

		if s.promoEnabled && order.PromoCode != nil && *order.PromoCode != "" {
			if err := s.promo.RecordUsage(ctx, tx, promodomain.RecordUsageRequest{
				Code:      *order.PromoCode,
				Email:     provisioned.Email,
				InvoiceID: n.InvoiceID,
			}); err != nil {
				return fmt.Errorf("record promo usage: %w", err)
			}
		}

		settled = &settlement{invoiceID: n.InvoiceID, provisioned: provisioned, link: link}
		return nil
	})
	release()

	switch {
	case errors.Is(err, errAlreadySettled):
		s.log.Info("concurrent result already settled order", zap.Int64("invoice_id", n.InvoiceID))
		return nil, errDuplicateDelivery
	case errors.Is(err, accessdomain.ErrInvalidEmail),
		errors.Is(err, orderdomain.ErrInvalidAmount),
		errors.Is(err, orderdomain.ErrInvalidInvoiceID):
		return nil, paymentdomain.ErrBadRequest
	case err != nil:
		return nil, err
	}

	s.log.Info("order paid",
		zap.Int64("invoice_id", n.InvoiceID),
		zap.Bool("user_created", settled.provisioned.Created),
	)
	return settled, nil
}

// lockPromo takes the settlement lock for the order's promo code. The caller
// releases it once the settling transaction has committed or rolled back, so
// the next settler of the same code counts this usage.
func (s *Service) lockPromo(ctx context.Context, order *orderdomain.Order, n *paymentdomain.ResultNotification) (func(), error) {
	noop := func() {}
	if !s.promoEnabled || s.locker == nil {
		return noop, nil
	}

	code := robokassa.Shp(n, ShpPromo)
	if order != nil {
		code = ""
		if order.PromoCode != nil {
			code = *order.PromoCode
		}
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return noop, nil
	}

	release, err := s.locker.Acquire(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("acquire promo lock: %w", err)
	}
	return release, nil
}

// finish turns the reconcile outcome into the gateway response and keeps the
// audit trail for verified notifications that were not duplicates.
func (s *Service) finish(ctx context.Context, n *paymentdomain.ResultNotification, params url.Values, err error) paymentdomain.Result {
	var res paymentdomain.Result
	token := paymentdomain.ResultOK
	switch {
	case err == nil, errors.Is(err, errDuplicateDelivery):
		res = paymentdomain.Result{Status: http.StatusOK, Body: fmt.Sprintf("OK%d", n.InvoiceID)}
	case errors.Is(err, paymentdomain.ErrBadRequest), errors.Is(err, paymentdomain.ErrEmailMissing):
		res = paymentdomain.Result{Status: http.StatusBadRequest, Body: err.Error()}
	case errors.Is(err, paymentdomain.ErrBadSignature):
		res = paymentdomain.Result{Status: http.StatusForbidden, Body: err.Error()}
	case errors.Is(err, paymentdomain.ErrAmountMismatch):
		res = paymentdomain.Result{Status: http.StatusConflict, Body: err.Error()}
	default:
		s.log.Error("result reconciliation failed", zap.Error(err))
		res = paymentdomain.Result{Status: http.StatusInternalServerError, Body: paymentdomain.ErrInternal.Error()}
	}
	duplicate := errors.Is(err, errDuplicateDelivery)
	switch {
	case duplicate:
		token = resultDuplicate
	case err != nil:
		token = res.Body
	}
	s.metrics.RecordWebhookResult(token)

	// Duplicates leave no trace in the store.
	if n != nil && !duplicate {
		s.recordEvent(ctx, n, params, token)
	}
	return res
}

func (s *Service) recordEvent(ctx context.Context, n *paymentdomain.ResultNotification, params url.Values, result string) {
	payload, err := json.Marshal(redact(params))
	if err != nil {
		s.log.Warn("encode result payload", zap.Error(err))
		return
	}
	err = s.repo.InsertEvent(ctx, s.db, &paymentdomain.EventRecord{
		ID:         s.genID.Generate(),
		InvoiceID:  n.InvoiceID,
		Result:     result,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: s.clock.Now(),
	})
	if err != nil {
		s.log.Warn("store result event", zap.Int64("invoice_id", n.InvoiceID), zap.Error(err))
	}
}

func redact(params url.Values) map[string]string {
	out := make(map[string]string, len(params))
	for k := range params {
		if strings.EqualFold(k, "SignatureValue") {
			continue
		}
		out[k] = params.Get(k)
	}
	return out
}

type accessEmail struct {
	InvoiceID         int64
	Email             string
	MagicLinkURL      string
	ExpiresAt         string
	TemporaryPassword string
}

// notify is best effort. The order is already paid when it runs.
func (s *Service) notify(ctx context.Context, st *settlement) {
	data := accessEmail{
		InvoiceID:         st.invoiceID,
		Email:             st.provisioned.Email,
		MagicLinkURL:      s.magicLinkBase + "?token=" + url.QueryEscape(st.link.Token),
		ExpiresAt:         st.link.ExpiresAt.UTC().Format(time.RFC1123),
		TemporaryPassword: st.provisioned.TemporaryPassword,
	}
	err := s.mailer.SendTemplate(ctx, []string{st.provisioned.Email}, accessTemplate, accessSubject, data)
	s.metrics.RecordNotification(err == nil)
	if err != nil {
		s.log.Error("access email failed",
			zap.Int64("invoice_id", st.invoiceID),
			zap.Error(err),
		)
	}
}
