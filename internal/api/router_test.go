package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/storefront-order-service/internal/api/middleware"
	"github.com/Cheertaboi/storefront-order-service/internal/config"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
)

const (
	testJWTSecret     = "0123456789abcdef0123"
	testWebhookSecret = "whsec-test"
	sessionCookie     = "checkout_session_id"
)

type stubOrders struct {
	place       func(ctx context.Context, cmd service.PlaceOrderCommand) (models.Order, error)
	placeAdmin  func(ctx context.Context, cmd service.AdminOrderCommand) (models.Order, error)
	get         func(ctx context.Context, id int64, caller models.Caller) (models.Order, error)
	list        func(ctx context.Context, caller models.Caller, limit int) ([]models.Order, error)
	adminGet    func(ctx context.Context, id int64) (models.Order, error)
	deleteOrder func(ctx context.Context, id int64) error
	updateStat  func(ctx context.Context, id int64, status string) (models.Order, error)
	cancel      func(ctx context.Context, id int64) (models.Order, error)
	payment     func(ctx context.Context, id int64, status string) (models.Order, error)
}

func (s *stubOrders) PlaceOrder(ctx context.Context, cmd service.PlaceOrderCommand) (models.Order, error) {
	return s.place(ctx, cmd)
}

func (s *stubOrders) PlaceAdminOrder(ctx context.Context, cmd service.AdminOrderCommand) (models.Order, error) {
	return s.placeAdmin(ctx, cmd)
}

func (s *stubOrders) GetOrder(ctx context.Context, id int64, caller models.Caller) (models.Order, error) {
	return s.get(ctx, id, caller)
}

func (s *stubOrders) ListOrders(ctx context.Context, caller models.Caller, limit int) ([]models.Order, error) {
	return s.list(ctx, caller, limit)
}

func (s *stubOrders) AdminGetOrder(ctx context.Context, id int64) (models.Order, error) {
	return s.adminGet(ctx, id)
}

func (s *stubOrders) DeleteOrder(ctx context.Context, id int64) error {
	return s.deleteOrder(ctx, id)
}

func (s *stubOrders) UpdateDeliveryStatus(ctx context.Context, id int64, status string) (models.Order, error) {
	return s.updateStat(ctx, id, status)
}

func (s *stubOrders) CancelOrder(ctx context.Context, id int64) (models.Order, error) {
	return s.cancel(ctx, id)
}

func (s *stubOrders) RecordPayment(ctx context.Context, id int64, status string) (models.Order, error) {
	return s.payment(ctx, id, status)
}

type stubCoupons struct {
	preview   func(ctx context.Context, code string, total decimal.Decimal) (models.CouponQuote, error)
	create    func(ctx context.Context, cmd service.CreateCouponCommand) (models.Coupon, error)
	setActive func(ctx context.Context, code string, active bool) error
}

func (s *stubCoupons) Preview(ctx context.Context, code string, total decimal.Decimal) (models.CouponQuote, error) {
	return s.preview(ctx, code, total)
}

func (s *stubCoupons) CreateCoupon(ctx context.Context, cmd service.CreateCouponCommand) (models.Coupon, error) {
	return s.create(ctx, cmd)
}

func (s *stubCoupons) SetActive(ctx context.Context, code string, active bool) error {
	return s.setActive(ctx, code, active)
}

type testServer struct {
	handler http.Handler
	auth    *middleware.Authenticator
	orders  *stubOrders
	coupons *stubCoupons
	pingErr error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		auth:    middleware.NewAuthenticator(config.AuthConfig{JWTSecret: testJWTSecret, SessionCookie: sessionCookie}),
		orders:  &stubOrders{},
		coupons: &stubCoupons{},
	}
	ts.handler = NewRouter(Deps{
		Orders:   ts.orders,
		Coupons:  ts.coupons,
		Auth:     ts.auth,
		Webhooks: config.WebhookConfig{PaymentSecret: testWebhookSecret, SignatureHeader: "X-Signature"},
		Ping:     func(context.Context) error { return ts.pingErr },
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID int64, role string) string {
	return signToken(t, testJWTSecret, userID, role, time.Hour)
}

func signToken(t *testing.T, secret string, userID int64, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func sampleOrder() models.Order {
	code := "SAVE10"
	return models.Order{
		ID:             42,
		Number:         "ORD-01HZX",
		Owner:          models.GuestOwner("sess"),
		Phone:          "+15550100",
		Area:           "Riverside",
		Address:        "12 Mill Lane",
		PaymentMethod:  models.PaymentUPI,
		PaymentStatus:  models.PaymentPaid,
		DeliveryStatus: models.DeliveryPending,
		Subtotal:       decimal.NewFromInt(200),
		Discount:       decimal.NewFromInt(15),
		FinalAmount:    decimal.NewFromInt(185),
		CouponCode:     &code,
		Items: []models.OrderItem{
			{ID: 1, OrderID: 42, ProductID: 1, ProductName: "Notebook", Price: decimal.NewFromInt(100), Quantity: 2},
		},
	}
}

const cartBody = `{"cart":[{"product_id":1,"quantity":2}],"phone":"+15550100","area":"Riverside",
	"address":"12 Mill Lane","payment_method":"upi","coupon_code":"SAVE10"}`

func TestPlaceOrderAsGuestIssuesSession(t *testing.T) {
	ts := newTestServer(t)
	var got service.PlaceOrderCommand
	ts.orders.place = func(_ context.Context, cmd service.PlaceOrderCommand) (models.Order, error) {
		got = cmd
		return sampleOrder(), nil
	}

	rec := ts.do(jsonRequest(http.MethodPost, "/orders", cartBody))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"final_amount":185.00`)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(42), body["order_id"])
	assert.Equal(t, "ORD-01HZX", body["order_number"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	session, ok := got.Owner.SessionID()
	require.True(t, ok)
	assert.Equal(t, cookies[0].Value, session)
	assert.Equal(t, []models.CartLine{{ProductID: 1, Quantity: 2}}, got.Lines)
	assert.Equal(t, "upi", got.PaymentMethod)
	assert.Equal(t, "SAVE10", got.CouponCode)
	assert.Equal(t, "Riverside", got.Delivery.Area)
}

func TestPlaceOrderReusesExistingSession(t *testing.T) {
	ts := newTestServer(t)
	const session = "6f1c1d7e-3a9b-4f3e-9a51-0c6f2f1b7a10"
	ts.orders.place = func(_ context.Context, cmd service.PlaceOrderCommand) (models.Order, error) {
		got, _ := cmd.Owner.SessionID()
		assert.Equal(t, session, got)
		return sampleOrder(), nil
	}

	req := jsonRequest(http.MethodPost, "/orders", cartBody)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
	rec := ts.do(req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestPlaceOrderAsAuthenticatedUser(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.place = func(_ context.Context, cmd service.PlaceOrderCommand) (models.Order, error) {
		userID, ok := cmd.Owner.UserID()
		assert.True(t, ok)
		assert.Equal(t, int64(7), userID)
		return sampleOrder(), nil
	}

	req := jsonRequest(http.MethodPost, "/orders", cartBody)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 7, middleware.RoleUser))
	rec := ts.do(req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		code     string
		message  string
		leakFree bool
	}{
		{"coupon", fmt.Errorf("%w: coupon FLAT50 requires a minimum order of 100.00", service.ErrCouponNotEligible),
			http.StatusBadRequest, "coupon_not_eligible", "minimum order of 100.00", false},
		{"product", fmt.Errorf("%w: product 9 does not exist", service.ErrProductUnavailable),
			http.StatusBadRequest, "product_unavailable", "product 9", false},
		{"stock", fmt.Errorf("%w: product 2 (Pen) has 1 available, 2 requested", service.ErrInsufficientStock),
			http.StatusBadRequest, "insufficient_stock", "1 available", false},
		{"input", fmt.Errorf("%w: cart is empty", service.ErrInvalidInput),
			http.StatusBadRequest, "invalid_input", "cart is empty", false},
		{"persistence", fmt.Errorf("%w: insert order: pq: connection refused", service.ErrPersistence),
			http.StatusInternalServerError, "internal_server_error", "internal server error", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orders.place = func(context.Context, service.PlaceOrderCommand) (models.Order, error) {
				return models.Order{}, tc.err
			}

			rec := ts.do(jsonRequest(http.MethodPost, "/orders", cartBody))

			require.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tc.code, body["error"])
			assert.Contains(t, body["message"], tc.message)
			assert.NotEmpty(t, body["request_id"])
			if tc.leakFree {
				assert.NotContains(t, rec.Body.String(), "pq:")
			}
		})
	}
}

func TestPlaceOrderRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(jsonRequest(http.MethodPost, "/orders", `{"cart":`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeBody(t, rec)["error"])
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.get = func(_ context.Context, id int64, caller models.Caller) (models.Order, error) {
		if id != 42 || caller.UserID != 7 {
			return models.Order{}, fmt.Errorf("%w: %d", service.ErrOrderNotFound, id)
		}
		return sampleOrder(), nil
	}
	bearer := "Bearer " + ts.token(t, 7, middleware.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	req.Header.Set("Authorization", bearer)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ORD-01HZX", body["order_number"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(200), items[0].(map[string]any)["line_total"])

	req = httptest.NewRequest(http.MethodGet, "/orders/43", nil)
	req.Header.Set("Authorization", bearer)
	assert.Equal(t, http.StatusNotFound, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.list = func(_ context.Context, caller models.Caller, limit int) ([]models.Order, error) {
		assert.Equal(t, 5, limit)
		assert.NotEmpty(t, caller.SessionID)
		return []models.Order{sampleOrder()}, nil
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/orders?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["orders"], 1)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/orders?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidBearerTokenIsRejected(t *testing.T) {
	ts := newTestServer(t)
	forged := signToken(t, "a-completely-different-secret", 7, middleware.RoleAdmin, time.Hour)

	for _, tok := range []string{"not-a-jwt", forged} {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := ts.do(req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_token", decodeBody(t, rec)["error"])
	}
}

func TestExpiredBearerTokenIsRejected(t *testing.T) {
	ts := newTestServer(t)
	tok := signToken(t, testJWTSecret, 7, middleware.RoleUser, -time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.adminGet = func(context.Context, int64) (models.Order, error) { return sampleOrder(), nil }

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/admin/orders/42", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/42", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 7, middleware.RoleUser))
	assert.Equal(t, http.StatusForbidden, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/orders/42", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 1, middleware.RoleAdmin))
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestAdminPlaceOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.placeAdmin = func(_ context.Context, cmd service.AdminOrderCommand) (models.Order, error) {
		assert.Equal(t, "Dana", cmd.Customer.Name)
		assert.Equal(t, "+15550111", cmd.Customer.Phone)
		assert.Equal(t, []models.CartLine{{ProductID: 2, Quantity: 1}}, cmd.Lines)
		assert.Equal(t, "cod", cmd.PaymentMethod)
		return sampleOrder(), nil
	}

	req := jsonRequest(http.MethodPost, "/admin/orders", `{"name":"Dana","phone":"+15550111","area":"Harbor",
		"address":"4 Quay Street","payment_method":"cod","items":[{"product_id":2,"quantity":1}]}`)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 1, middleware.RoleAdmin))
	rec := ts.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestAdminStatusAndCancel(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.updateStat = func(_ context.Context, id int64, status string) (models.Order, error) {
		if status == "Packed" {
			return models.Order{}, fmt.Errorf("%w: Shipped to Packed", service.ErrInvalidTransition)
		}
		o := sampleOrder()
		o.DeliveryStatus = models.DeliveryShipped
		return o, nil
	}
	ts.orders.cancel = func(_ context.Context, id int64) (models.Order, error) {
		o := sampleOrder()
		o.DeliveryStatus = models.DeliveryCancelled
		return o, nil
	}
	ts.orders.deleteOrder = func(_ context.Context, id int64) error {
		return fmt.Errorf("%w: %d", service.ErrOrderNotFound, id)
	}
	bearer := "Bearer " + ts.token(t, 1, middleware.RoleAdmin)

	req := jsonRequest(http.MethodPatch, "/admin/orders/42/status", `{"status":"Shipped"}`)
	req.Header.Set("Authorization", bearer)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shipped", decodeBody(t, rec)["delivery_status"])

	req = jsonRequest(http.MethodPatch, "/admin/orders/42/status", `{"status":"Packed"}`)
	req.Header.Set("Authorization", bearer)
	rec = ts.do(req)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody(t, rec)["error"])

	req = httptest.NewRequest(http.MethodPost, "/admin/orders/42/cancel", nil)
	req.Header.Set("Authorization", bearer)
	rec = ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cancelled", decodeBody(t, rec)["delivery_status"])

	req = httptest.NewRequest(http.MethodDelete, "/admin/orders/99", nil)
	req.Header.Set("Authorization", bearer)
	assert.Equal(t, http.StatusNotFound, ts.do(req).Code)
}

func TestApplyCoupon(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.preview = func(_ context.Context, code string, total decimal.Decimal) (models.CouponQuote, error) {
		assert.Equal(t, "save10", code)
		assert.True(t, total.Equal(decimal.NewFromInt(200)))
		return models.CouponQuote{Code: "SAVE10", Discount: decimal.NewFromInt(15), FinalAmount: decimal.NewFromInt(185)}, nil
	}

	rec := ts.do(jsonRequest(http.MethodPost, "/coupons/apply", `{"code":"save10","cartTotal":200}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":"SAVE10","discount":15.00,"finalAmount":185.00}`, rec.Body.String())

	rec = ts.do(jsonRequest(http.MethodPost, "/coupons/apply", `{"code":"save10"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCoupons(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.create = func(_ context.Context, cmd service.CreateCouponCommand) (models.Coupon, error) {
		if cmd.Code == "DUP" {
			return models.Coupon{}, fmt.Errorf("%w: DUP", service.ErrCouponConflict)
		}
		assert.True(t, cmd.Active)
		assert.Equal(t, "percentage", cmd.Type)
		return models.Coupon{ID: 3, Code: "SPRING", Type: models.DiscountPercentage, Value: cmd.Value, IsActive: true}, nil
	}
	ts.coupons.setActive = func(_ context.Context, code string, active bool) error {
		if code != "SPRING" {
			return fmt.Errorf("%w: %s", service.ErrCouponNotFound, code)
		}
		assert.False(t, active)
		return nil
	}
	bearer := "Bearer " + ts.token(t, 1, middleware.RoleAdmin)

	req := jsonRequest(http.MethodPost, "/admin/coupons", `{"code":"spring","type":"percentage","value":"25"}`)
	req.Header.Set("Authorization", bearer)
	rec := ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(25), decodeBody(t, rec)["value"])

	req = jsonRequest(http.MethodPost, "/admin/coupons", `{"code":"DUP","type":"flat","value":5}`)
	req.Header.Set("Authorization", bearer)
	assert.Equal(t, http.StatusConflict, ts.do(req).Code)

	req = jsonRequest(http.MethodPatch, "/admin/coupons/spring/active", `{"active":false}`)
	req.Header.Set("Authorization", bearer)
	assert.Equal(t, http.StatusOK, ts.do(req).Code)

	req = jsonRequest(http.MethodPatch, "/admin/coupons/ghost/active", `{"active":false}`)
	req.Header.Set("Authorization", bearer)
	assert.Equal(t, http.StatusNotFound, ts.do(req).Code)
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhook(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.payment = func(_ context.Context, id int64, status string) (models.Order, error) {
		assert.Equal(t, int64(42), id)
		assert.Equal(t, "succeeded", status)
		o := sampleOrder()
		o.PaymentStatus = models.PaymentPaid
		return o, nil
	}
	body := `{"order_id":42,"status":"succeeded"}`

	req := jsonRequest(http.MethodPost, "/webhooks/payments", body)
	req.Header.Set("X-Signature", sign(body))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Paid", decodeBody(t, rec)["payment_status"])
	assert.Empty(t, rec.Result().Cookies())

	req = jsonRequest(http.MethodPost, "/webhooks/payments", body)
	req.Header.Set("X-Signature", sign(`{"order_id":43,"status":"succeeded"}`))
	assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)

	req = jsonRequest(http.MethodPost, "/webhooks/payments", body)
	assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)
}

func TestPaymentWebhookDisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t)
	ts.handler = NewRouter(Deps{Orders: ts.orders, Coupons: ts.coupons, Auth: ts.auth})

	rec := ts.do(jsonRequest(http.MethodPost, "/webhooks/payments", `{}`))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ts.pingErr = errors.New("connection refused")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPanicsBecomeJSONErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.list = func(context.Context, models.Caller, int) ([]models.Order, error) {
		panic("nil map write")
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/orders", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", decodeBody(t, rec)["error"])
}
