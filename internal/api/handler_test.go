package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/service"
	"storefront-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{"id", "name", "email", "mobile_number", "password_hash", "is_verified", "token",
	"token_expiry", "otp_code", "otp_expiry", "created_at"}

var productCols = []string{"id", "name", "description", "price", "stock", "category", "image_urls",
	"main_image_url", "demanded", "keywords", "status", "created_at", "updated_at"}

type stubGateway struct{}

func (stubGateway) CreateOrder(context.Context, payment.OrderRequest) (*payment.RemoteOrder, error) {
	return nil, errors.New("not expected")
}

func (stubGateway) FetchPayment(context.Context, string) (*payment.RemotePayment, error) {
	return nil, errors.New("not expected")
}

func (stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return payment.VerifySignature("rzp_secret", orderID, paymentID, signature)
}

func (stubGateway) KeyID() string { return "rzp_key" }

type stubLimiter struct {
	allow  bool
	scopes []string
}

func (l *stubLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	l.scopes = append(l.scopes, scope)
	return l.allow, 6, nil
}

type testServer struct {
	router *gin.Engine
	mock   sqlmock.Sqlmock
	tokens *auth.TokenIssuer
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewFromDB(sqlx.NewDb(db, "postgres"))

	tokens := auth.NewTokenIssuer("jwt-secret", "storefront-service", time.Hour)
	cfg := service.AccountConfig{OTPLength: 4, OTPTTL: 5 * time.Minute, DefaultCountryCode: "+91"}

	h := NewHandler(Services{
		Users:     service.NewAccountService(models.AccountKindUser, st, tokens, nil, cfg),
		Agents:    service.NewAccountService(models.AccountKindAgent, st, tokens, nil, cfg),
		Catalog:   service.NewCatalogService(st),
		Cart:      service.NewCartService(st),
		Favorites: service.NewFavoritesService(st),
		Addresses: service.NewAddressService(st),
		Orders:    service.NewOrderService(st, stubGateway{}, nil, "INR"),
	}, opts)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, mock: mock, tokens: tokens}
}

func (s *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// loginAs issues a user token and expects the session lookup it triggers.
func (s *testServer) loginAs(t *testing.T, userID int64) string {
	t.Helper()
	token, expiry, err := s.tokens.Issue(models.AccountKindUser, userID, time.Now())
	require.NoError(t, err)
	s.mock.ExpectQuery(`FROM users WHERE token = \$1`).
		WithArgs(token).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(userID, "Asha", "asha@example.com", nil, "hash", true, token, expiry, nil, nil, time.Now()))
	return token
}

type errorEnvelope struct {
	Status string `json:"status"`
	Error  struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	s := newTestServer(t, Options{Checks: map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}})

	w := s.do(http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.NotContains(t, w.Body.String(), "postgres")
}

func TestCreateOrderRequiresCustomerToken(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodPost, "/api/v1/orders", `{"items":[{"product_id":1,"quantity":1}]}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Error.Code)
}

func TestAgentTokenRejectedOnCustomerRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	token, _, err := s.tokens.Issue(models.AccountKindAgent, 3, time.Now())
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/api/v1/orders", `{"items":[{"product_id":1,"quantity":1}]}`, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestPublicOrderRejectsEmptyItems(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodPost, "/api/v1/orders/public", `{"user_id":7,"items":[]}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeError(t, w)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "order must contain at least one item", env.Error.Message)
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodPost, "/api/v1/orders/public", `{"user_id":`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decodeError(t, w).Error.Message)
}

func TestConfirmPaymentRejectsTamperedSignature(t *testing.T) {
	s := newTestServer(t, Options{})

	body := `{"order_id":11,"remote_order_id":"order_R1","remote_payment_id":"pay_P1","signature":"deadbeef"}`
	w := s.do(http.MethodPost, "/api/v1/orders/confirm-payment", body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid signature", decodeError(t, w).Error.Message)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	s := newTestServer(t, Options{})
	s.mock.ExpectQuery(`FROM products WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(productCols))

	w := s.do(http.MethodGet, "/api/v1/products/42", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "product not found", decodeError(t, w).Error.Message)
}

func TestListProductsByCategory(t *testing.T) {
	s := newTestServer(t, Options{})
	now := time.Now()
	s.mock.ExpectQuery(`FROM products WHERE category = \$1`).
		WithArgs("toys").
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(1, "Ball", "Red ball", "100.00", 5, "toys", []byte(`["a.jpg"]`), "a.jpg", false, "ball", "active", now, now))

	w := s.do(http.MethodGet, "/api/v1/products?category=toys", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status   string           `json:"status"`
		Count    int              `json:"count"`
		Products []models.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Ball", body.Products[0].Name)
}

func TestInvalidPathID(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodGet, "/api/v1/cart/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid user_id", decodeError(t, w).Error.Message)
}

func TestAuthenticatedCallerCannotReadAnotherCart(t *testing.T) {
	s := newTestServer(t, Options{})
	token := s.loginAs(t, 7)

	w := s.do(http.MethodGet, "/api/v1/cart/8", "", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestUploadRequiresAgent(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodPost, "/api/v1/upload", `{"name":"Ball"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitedLogin(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	s := newTestServer(t, Options{
		Limiter:    limiter,
		LoginLimit: RateLimitPolicy{Name: "login", Window: time.Minute, Limit: 5},
	})

	w := s.do(http.MethodPost, "/api/v1/login", `{"email":"Asha@Example.com","password":"x"}`, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, w).Error.Code)
	require.NotEmpty(t, limiter.scopes)
	assert.True(t, strings.HasPrefix(limiter.scopes[0], "login:user:ip:"))
}

func TestRateLimitPassesBodyThrough(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	s := newTestServer(t, Options{
		Limiter:  limiter,
		OTPLimit: RateLimitPolicy{Name: "otp", Window: time.Minute, Limit: 5},
	})
	s.mock.ExpectQuery(`FROM agents WHERE LOWER\(email\)`).
		WithArgs("asha@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols))

	w := s.do(http.MethodPost, "/api/v1/agent/send-otp", `{"email":"Asha@Example.com"}`, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"otp:agent:ip:192.0.2.1", "otp:agent:id:asha@example.com"}, limiter.scopes)
}

func TestRespondErrorHidesUntypedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeError(t, w)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, "internal server error", env.Error.Message)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestRespondErrorIncludesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, apperr.New(apperr.CodeNotFound, "products not found").
		WithDetails(map[string][]int64{"missing_ids": {4, 9}}))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"missing_ids":[4,9]}`, string(decodeError(t, w).Error.Details))
}
