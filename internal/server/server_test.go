package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/coursepay/internal/access/domain"
	accessrepo "github.com/smallbiznis/coursepay/internal/access/repository"
	accessservice "github.com/smallbiznis/coursepay/internal/access/service"
	"github.com/smallbiznis/coursepay/internal/access/session"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/observability"
	orderdomain "github.com/smallbiznis/coursepay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/coursepay/internal/payment/domain"
	promodomain "github.com/smallbiznis/coursepay/internal/promo/domain"
	dbpkg "github.com/smallbiznis/coursepay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) CreateOrder(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.Checkout, error) {
	args := m.Called(req)
	checkout, _ := args.Get(0).(*orderdomain.Checkout)
	return checkout, args.Error(1)
}

func (m *mockOrders) FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (*orderdomain.Order, error) {
	args := m.Called(invoiceID)
	order, _ := args.Get(0).(*orderdomain.Order)
	return order, args.Error(1)
}

func (m *mockOrders) CreateFromWebhook(ctx context.Context, tx *gorm.DB, req orderdomain.WebhookOrderRequest) (*orderdomain.Order, error) {
	args := m.Called(req)
	order, _ := args.Get(0).(*orderdomain.Order)
	return order, args.Error(1)
}

func (m *mockOrders) MarkPaid(ctx context.Context, tx *gorm.DB, invoiceID int64) (bool, error) {
	args := m.Called(invoiceID)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) Quote(ctx context.Context, req orderdomain.QuoteRequest) (*orderdomain.Quote, error) {
	args := m.Called(req)
	quote, _ := args.Get(0).(*orderdomain.Quote)
	return quote, args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) HandleResult(ctx context.Context, params url.Values) paymentdomain.Result {
	args := m.Called(params)
	return args.Get(0).(paymentdomain.Result)
}

type testServer struct {
	srv        *Server
	db         *gorm.DB
	access     accessdomain.Service
	orders     *mockOrders
	reconciler *mockReconciler
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbpkg.NewTest(t, &accessdomain.User{}, &accessdomain.MagicLink{}, &accessdomain.AccessGrant{}, &accessdomain.Session{})
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	cfg := config.Config{Access: config.AccessConfig{
		PasswordPolicy: config.PasswordPolicyNewUsers,
		SessionTTL:     time.Hour,
	}}

	access := accessservice.NewService(accessservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Config: cfg, Repo: accessrepo.Provide(),
	})
	orders := &mockOrders{}
	reconciler := &mockReconciler{}

	engine := NewEngine(EngineParams{
		ObsCfg: observability.Config{ServiceName: "coursepay", Environment: "test"},
		Log:    zap.NewNop(),
	})
	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Orders:     orders,
		Access:     access,
		Reconciler: reconciler,
		Sessions:   session.NewManager(cfg, clk),
	})
	return testServer{srv: srv, db: db, access: access, orders: orders, reconciler: reconciler}
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreateOrderReturnsCheckout(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.On("CreateOrder", orderdomain.CreateOrderRequest{Email: "a@b.com", PromoCode: "SUMMER10"}).
		Return(&orderdomain.Checkout{
			Endpoint:  "https://gateway.test/pay",
			Params:    map[string]string{"OutSum": "900.00", "InvId": "77", "Shp_product": "premium_course", "Shp_promo": "SUMMER10"},
			InvoiceID: 77,
		}, nil).Once()

	rec := ts.do(jsonRequest(http.MethodPost, "/api/orders", CreateOrderRequest{Email: "a@b.com", PromoCode: "SUMMER10"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "https://gateway.test/pay", body["endpoint"])
	params := body["params"].(map[string]any)
	assert.Equal(t, "900.00", params["OutSum"])
	assert.NotContains(t, body, "InvoiceID")
	ts.orders.AssertExpectations(t)
}

func TestCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		want   errorResponse
	}{
		{name: "invalid email", err: orderdomain.ErrInvalidEmail, status: http.StatusBadRequest, want: errorResponse{Error: "invalid_email"}},
		{name: "promo", err: &orderdomain.PromoError{Reason: promodomain.ReasonExpired}, status: http.StatusBadRequest, want: errorResponse{Error: "promo_invalid", Reason: "expired"}},
		{name: "product", err: orderdomain.ErrProductNotFound, status: http.StatusNotFound, want: errorResponse{Error: "product_not_found"}},
		{name: "gateway", err: orderdomain.ErrGatewayNotReady, status: http.StatusServiceUnavailable, want: errorResponse{Error: "service_unavailable"}},
		{name: "storage", err: assert.AnError, status: http.StatusInternalServerError, want: errorResponse{Error: "internal_error"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orders.On("CreateOrder", mock.Anything).Return(nil, tc.err).Once()

			rec := ts.do(jsonRequest(http.MethodPost, "/api/orders", CreateOrderRequest{Email: "x"}))
			assert.Equal(t, tc.status, rec.Code)

			var got errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCreateOrderRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")

	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
	ts.orders.AssertNotCalled(t, "CreateOrder", mock.Anything)
}

func TestValidatePromo(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.On("Quote", orderdomain.QuoteRequest{Email: "a@b.com", ProductCode: "premium_course", PromoCode: "summer10"}).
		Return(&orderdomain.Quote{
			BaseAmount: "1000.00",
			Amount:     "900.00",
			PromoCode:  "SUMMER10",
			PromoType:  "percent",
			PromoValue: "10",
		}, nil).Once()
	ts.orders.On("Quote", orderdomain.QuoteRequest{Email: "a@b.com", ProductCode: "premium_course", PromoCode: "OLD"}).
		Return(nil, &orderdomain.PromoError{Reason: promodomain.ReasonExpired}).Once()

	rec := ts.do(jsonRequest(http.MethodPost, "/api/promo/validate", ValidatePromoRequest{Code: "summer10", Email: "a@b.com", ProductCode: "premium_course"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var ok ValidatePromoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, ValidatePromoResponse{
		Success: true, Code: "SUMMER10", Type: "percent", Value: "10", Amount: "900.00", BaseAmount: "1000.00",
	}, ok)

	rec = ts.do(jsonRequest(http.MethodPost, "/api/promo/validate", ValidatePromoRequest{Code: "OLD", Email: "a@b.com", ProductCode: "premium_course"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var rejected ValidatePromoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	assert.False(t, rejected.Success)
	assert.Equal(t, "expired", rejected.Error)

	rec = ts.do(jsonRequest(http.MethodPost, "/api/promo/validate", ValidatePromoRequest{Code: " "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(jsonRequest(http.MethodPost, "/api/promo/validate", ValidatePromoRequest{Code: "summer10", ProductCode: "premium_course"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var noEmail ValidatePromoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &noEmail))
	assert.Equal(t, orderdomain.ErrInvalidEmail.Error(), noEmail.Error)
	ts.orders.AssertExpectations(t)
}

func TestPaymentResultMergesQueryAndForm(t *testing.T) {
	ts := newTestServer(t)
	ts.reconciler.On("HandleResult", mock.MatchedBy(func(v url.Values) bool {
		return v.Get("InvId") == "55" && v.Get("OutSum") == "5490.00" && v.Get("Shp_email") == "a@b.com"
	})).Return(paymentdomain.Result{Status: http.StatusOK, Body: "OK55"}).Once()

	form := url.Values{"OutSum": {"5490.00"}, "SignatureValue": {"abc"}, "Shp_email": {"a@b.com"}}
	req := httptest.NewRequest(http.MethodPost, "/payments/result?InvId=55", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK55", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	ts.reconciler.AssertExpectations(t)
}

func TestPaymentResultPassesErrorToken(t *testing.T) {
	ts := newTestServer(t)
	ts.reconciler.On("HandleResult", mock.Anything).
		Return(paymentdomain.Result{Status: http.StatusForbidden, Body: "bad_signature"}).Once()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/payments/result?OutSum=1&InvId=2&SignatureValue=x", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "bad_signature", rec.Body.String())
}

func issueLink(t *testing.T, ts testServer, email string) string {
	t.Helper()
	var token string
	err := ts.db.Transaction(func(tx *gorm.DB) error {
		ctx := context.Background()
		user, err := ts.access.Provision(ctx, tx, email)
		if err != nil {
			return err
		}
		if err := ts.access.GrantAccess(ctx, tx, user.UserID); err != nil {
			return err
		}
		link, err := ts.access.IssueMagicLink(ctx, tx, user.UserID)
		if err != nil {
			return err
		}
		token = link.Token
		return nil
	})
	require.NoError(t, err)
	return token
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func TestMagicLinkSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	token := issueLink(t, ts, "student@example.com")

	rec := ts.do(jsonRequest(http.MethodPost, "/api/auth/magic-link", MagicLinkRequest{Token: token}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "student@example.com", decodeBody(t, rec)["email"])
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)

	me := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	me.AddCookie(cookie)
	rec = ts.do(me)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "student@example.com", body["email"])
	assert.Equal(t, true, body["has_access"])

	rec = ts.do(jsonRequest(http.MethodPost, "/api/auth/magic-link", MagicLinkRequest{Token: token}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "magic_link_consumed", decodeBody(t, rec)["error"])

	logout := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	logout.AddCookie(cookie)
	rec = ts.do(logout)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	me = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	me.AddCookie(cookie)
	rec = ts.do(me)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, rec)["error"])
}

func TestMagicLinkUnknownToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(jsonRequest(http.MethodPost, "/api/auth/magic-link", MagicLinkRequest{Token: "deadbeef"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "magic_link_invalid", decodeBody(t, rec)["error"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	issueLink(t, ts, "student@example.com")

	rec := ts.do(jsonRequest(http.MethodPost, "/api/auth/login", LoginRequest{Email: "student@example.com", Password: "nope"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, rec)["error"])
}
