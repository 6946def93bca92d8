package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

type httpFixture struct {
	carts    *stubCarts
	orders   *stubOrders
	payments *stubPayments
	reports  *stubReports
	server   http.Handler
}

func newHTTPFixture() *httpFixture {
	f := &httpFixture{
		carts:    &stubCarts{},
		orders:   &stubOrders{},
		payments: &stubPayments{},
		reports:  &stubReports{},
	}
	f.server = NewHTTPHandler(f.carts, f.orders, f.payments, f.reports, discardLogger()).Routes()
	return f
}

func (f *httpFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	f := newHTTPFixture()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAddToCart(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		addErr     error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "success",
			body:       `{"itemId":"chips","kind":"Retail","quantity":2,"vendorId":"vendor-1"}`,
			wantStatus: http.StatusOK,
			wantMsg:    "Item added to cart.",
		},
		{
			name:       "invalid body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "missing fields",
			body:       `{"itemId":"chips","kind":"Retail"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "itemId, kind, quantity, and vendorId are required.",
		},
		{
			name:       "bad kind",
			body:       `{"itemId":"chips","kind":"Frozen","quantity":1,"vendorId":"vendor-1"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid kind provided",
		},
		{
			name:       "stock conflict",
			body:       `{"itemId":"chips","kind":"Retail","quantity":9,"vendorId":"vendor-1"}`,
			addErr:     &domain.StockError{ItemID: "chips", Kind: domain.KindRetail, Requested: 9, Available: 5},
			wantStatus: http.StatusConflict,
			wantMsg:    "Only 5 unit(s) available",
		},
		{
			name:       "other vendor",
			body:       `{"itemId":"chips","kind":"Retail","quantity":1,"vendorId":"vendor-2"}`,
			addErr:     domain.CartPolicy("Cart already has items from another vendor"),
			wantStatus: http.StatusConflict,
			wantMsg:    "Cart already has items from another vendor",
		},
		{
			name:       "user missing",
			body:       `{"itemId":"chips","kind":"Retail","quantity":1,"vendorId":"vendor-1"}`,
			addErr:     domain.NotFound("User not found"),
			wantStatus: http.StatusNotFound,
			wantMsg:    "User not found",
		},
		{
			name:       "infrastructure",
			body:       `{"itemId":"chips","kind":"Retail","quantity":1,"vendorId":"vendor-1"}`,
			addErr:     errors.New("redis down"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHTTPFixture()
			f.carts.addErr = tt.addErr

			rec, resp := f.do(t, http.MethodPost, "/api/cart/add/user-1", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMsg, resp.Message)
			assert.Equal(t, tt.wantStatus == http.StatusOK, resp.Success)
		})
	}
}

func TestAddToCart_PassesPathAndBody(t *testing.T) {
	f := newHTTPFixture()
	f.do(t, http.MethodPost, "/api/cart/add/user-7", `{"itemId":"dosa","kind":"Produce","quantity":1,"vendorId":"vendor-1"}`)
	assert.Equal(t, []string{"user-7/dosa/Produce/vendor-1"}, f.carts.added)
}

func TestChangeQuantityRoutes(t *testing.T) {
	f := newHTTPFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/cart/add-one/user-1", `{"itemId":"chips","kind":"Retail"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Quantity increased.", resp.Message)

	rec, resp = f.do(t, http.MethodPost, "/api/cart/remove-one/user-1", `{"itemId":"chips","kind":"Retail"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Quantity decreased.", resp.Message)
	assert.Equal(t, []int{1, -1}, f.carts.deltas)

	rec, resp = f.do(t, http.MethodPost, "/api/cart/remove-one/user-1", `{"kind":"Retail"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "itemId and kind are required.", resp.Message)
}

func TestGetCart(t *testing.T) {
	f := newHTTPFixture()
	f.carts.view = domain.CartView{
		VendorID:   "vendor-1",
		VendorName: "Campus Canteen",
		Lines: []domain.CartLine{
			{ItemID: "chips", Kind: domain.KindRetail, Name: "Chips", Price: decimal.NewFromInt(20), Quantity: 2, TotalPrice: decimal.NewFromInt(40)},
		},
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart/user-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data domain.CartView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Campus Canteen", body.Data.VendorName)
	require.Len(t, body.Data.Lines, 1)
	assert.True(t, body.Data.Lines[0].TotalPrice.Equal(decimal.NewFromInt(40)))
}

func TestGetExtras_EmptyList(t *testing.T) {
	f := newHTTPFixture()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart/extras/user-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestPlaceOrder(t *testing.T) {
	f := newHTTPFixture()
	f.orders.result = service.PlaceOrderResult{
		OrderID: "order-1",
		Total:   decimal.NewFromInt(235),
		Intent:  domain.PaymentIntent{KeyID: "rzp_key", GatewayOrderRef: "order_abc", Amount: 23500, Currency: "INR"},
	}

	rec, resp := f.do(t, http.MethodPost, "/api/orders/user-1",
		`{"orderType":"takeaway","collectorName":"Asha","collectorPhone":"9999999999"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "user-1", f.orders.placed.UserID)
	assert.Equal(t, domain.OrderTypeTakeaway, f.orders.placed.OrderType)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "order-1", data["orderId"])
	assert.Equal(t, "235.00", data["total"])
	assert.Equal(t, "order_abc", data["razorpayOptions"].(map[string]any)["order_id"])
}

func TestPlaceOrder_InvalidType(t *testing.T) {
	f := newHTTPFixture()
	rec, resp := f.do(t, http.MethodPost, "/api/orders/user-1", `{"orderType":"drone"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "Invalid orderType")
}

func TestAdvanceStatus(t *testing.T) {
	f := newHTTPFixture()
	rec, _ := f.do(t, http.MethodPatch, "/api/orders/order-1/status", `{"status":"completed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusCompleted, f.orders.advanced)
}

func TestVerifyPayment(t *testing.T) {
	t.Run("settled", func(t *testing.T) {
		f := newHTTPFixture()
		f.payments.res = service.Settlement{OrderID: "order-1", PaymentID: "pay-1"}

		rec, resp := f.do(t, http.MethodPost, "/api/payment/verify",
			`{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz","razorpay_signature":"sig","orderId":"order-1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Payment verified and order placed.", resp.Message)
		assert.Equal(t, service.VerifyRequest{
			OrderID: "order-1", GatewayOrderRef: "order_abc", GatewayPaymentRef: "pay_xyz", Signature: "sig",
		}, f.payments.got)
	})

	t.Run("duplicate", func(t *testing.T) {
		f := newHTTPFixture()
		f.payments.res = service.Settlement{OrderID: "order-1", Duplicate: true}

		_, resp := f.do(t, http.MethodPost, "/api/payment/verify", `{"orderId":"order-1"}`)
		assert.Equal(t, "Payment already processed.", resp.Message)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newHTTPFixture()
		f.payments.err = domain.PaymentVerification("Payment verification failed")

		rec, resp := f.do(t, http.MethodPost, "/api/payment/verify", `{"orderId":"order-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("oversold", func(t *testing.T) {
		f := newHTTPFixture()
		f.payments.err = &domain.StockError{ItemID: "chips", Kind: domain.KindRetail, Requested: 2, Available: -1}

		rec, _ := f.do(t, http.MethodPost, "/api/payment/verify", `{"orderId":"order-1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestReports(t *testing.T) {
	t.Run("vendor with date", func(t *testing.T) {
		f := newHTTPFixture()
		f.reports.created = true

		rec, resp := f.do(t, http.MethodPost, "/api/inventory/report/vendor/vendor-1", `{"date":"2026-03-14"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Inventory report created.", resp.Message)
		assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), f.reports.date)
	})

	t.Run("vendor without body", func(t *testing.T) {
		f := newHTTPFixture()
		req := httptest.NewRequest(http.MethodPost, "/api/inventory/report/vendor/vendor-1", nil)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.WithinDuration(t, time.Now().UTC(), f.reports.date, time.Minute)
	})

	t.Run("bad date", func(t *testing.T) {
		f := newHTTPFixture()
		rec, _ := f.do(t, http.MethodPost, "/api/inventory/report/uni/uni-1", `{"date":"14/03/2026"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("uni summary", func(t *testing.T) {
		f := newHTTPFixture()
		rec, resp := f.do(t, http.MethodPost, "/api/inventory/report/uni/uni-1", `{}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"total": float64(2), "created": float64(1)}, resp.Data)
	})

	t.Run("get missing", func(t *testing.T) {
		f := newHTTPFixture()
		f.reports.err = domain.NotFound("No inventory report found for vendor vendor-1 on 2026-03-14")

		rec, resp := f.do(t, http.MethodGet, "/api/inventory/report/vendor/vendor-1?date=2026-03-14", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "No inventory report found for vendor vendor-1 on 2026-03-14", resp.Message)
	})
}
