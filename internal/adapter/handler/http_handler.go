package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

const dateLayout = "2006-01-02"

type HTTPHandler struct {
	carts    CartUseCase
	orders   OrderUseCase
	payments PaymentUseCase
	reports  ReportUseCase
	logger   *slog.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type cartItemRequest struct {
	ItemID   string `json:"itemId"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
	VendorID string `json:"vendorId"`
}

type placeOrderRequest struct {
	OrderType      string `json:"orderType"`
	CollectorName  string `json:"collectorName"`
	CollectorPhone string `json:"collectorPhone"`
	Address        string `json:"address"`
}

type placeOrderResponse struct {
	OrderID        string               `json:"orderId"`
	Total          string               `json:"total"`
	RazorpayOption domain.PaymentIntent `json:"razorpayOptions"`
}

type verifyPaymentRequest struct {
	GatewayOrderRef   string `json:"razorpay_order_id"`
	GatewayPaymentRef string `json:"razorpay_payment_id"`
	Signature         string `json:"razorpay_signature"`
	OrderID           string `json:"orderId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type reportRequest struct {
	Date string `json:"date"`
}

func NewHTTPHandler(carts CartUseCase, orders OrderUseCase, payments PaymentUseCase, reports ReportUseCase, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		carts:    carts,
		orders:   orders,
		payments: payments,
		reports:  reports,
		logger:   logger,
	}
}

// Routes builds the traced router for every endpoint.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/{userId}", h.GetCart)
			r.Get("/extras/{userId}", h.GetExtras)
			r.Post("/add/{userId}", h.AddToCart)
			r.Post("/add-one/{userId}", h.IncreaseOne)
			r.Post("/remove-one/{userId}", h.DecreaseOne)
			r.Post("/remove-item/{userId}", h.RemoveItem)
		})
		r.Post("/orders/{userId}", h.PlaceOrder)
		r.Patch("/orders/{orderId}/status", h.AdvanceStatus)
		r.Post("/payment/verify", h.VerifyPayment)
		r.Route("/inventory/report", func(r chi.Router) {
			r.Post("/vendor/{vendorId}", h.CreateVendorReport)
			r.Post("/uni/{uniId}", h.CreateUniReport)
			r.Get("/vendor/{vendorId}", h.GetVendorReport)
		})
	})

	return otelhttp.NewHandler(r, "campus-order")
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ItemID == "" || req.Kind == "" || req.VendorID == "" || req.Quantity == 0 {
		h.fail(w, r, domain.Validation("itemId, kind, quantity, and vendorId are required."))
		return
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.carts.AddItem(r.Context(), chi.URLParam(r, "userId"), req.ItemID, kind, req.Quantity, req.VendorID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Item added to cart."})
}

func (h *HTTPHandler) IncreaseOne(w http.ResponseWriter, r *http.Request) {
	h.changeQuantity(w, r, 1, "Quantity increased.")
}

func (h *HTTPHandler) DecreaseOne(w http.ResponseWriter, r *http.Request) {
	h.changeQuantity(w, r, -1, "Quantity decreased.")
}

func (h *HTTPHandler) changeQuantity(w http.ResponseWriter, r *http.Request, delta int, message string) {
	itemID, kind, ok := h.itemRef(w, r)
	if !ok {
		return
	}
	if err := h.carts.ChangeQuantity(r.Context(), chi.URLParam(r, "userId"), itemID, kind, delta); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message})
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, kind, ok := h.itemRef(w, r)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), chi.URLParam(r, "userId"), itemID, kind); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Item removed from cart."})
}

func (h *HTTPHandler) itemRef(w http.ResponseWriter, r *http.Request) (string, domain.Kind, bool) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return "", "", false
	}
	if req.ItemID == "" || req.Kind == "" {
		h.fail(w, r, domain.Validation("itemId and kind are required."))
		return "", "", false
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		h.fail(w, r, err)
		return "", "", false
	}
	return req.ItemID, kind, true
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.GetCartDetails(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: view})
}

func (h *HTTPHandler) GetExtras(w http.ResponseWriter, r *http.Request) {
	extras, err := h.carts.GetExtras(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if extras == nil {
		extras = []domain.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: extras})
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	orderType, err := domain.ParseOrderType(req.OrderType)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		UserID:         chi.URLParam(r, "userId"),
		OrderType:      orderType,
		CollectorName:  req.CollectorName,
		CollectorPhone: req.CollectorPhone,
		Address:        req.Address,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data: placeOrderResponse{
			OrderID:        res.OrderID,
			Total:          res.Total.StringFixed(2),
			RazorpayOption: res.Intent,
		},
	})
}

func (h *HTTPHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.orders.AdvanceStatus(r.Context(), chi.URLParam(r, "orderId"), next); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Order status updated."})
}

func (h *HTTPHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.payments.VerifyAndSettle(r.Context(), service.VerifyRequest{
		OrderID:           req.OrderID,
		GatewayOrderRef:   req.GatewayOrderRef,
		GatewayPaymentRef: req.GatewayPaymentRef,
		Signature:         req.Signature,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	message := "Payment verified and order placed."
	if res.Duplicate {
		message = "Payment already processed."
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: res})
}

func (h *HTTPHandler) CreateVendorReport(w http.ResponseWriter, r *http.Request) {
	date, ok := h.reportDate(w, r)
	if !ok {
		return
	}
	created, err := h.reports.GenerateDailyReport(r.Context(), chi.URLParam(r, "vendorId"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	message := "Report already exists for this date."
	if created {
		message = "Inventory report created."
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message})
}

func (h *HTTPHandler) CreateUniReport(w http.ResponseWriter, r *http.Request) {
	date, ok := h.reportDate(w, r)
	if !ok {
		return
	}
	summary, err := h.reports.GenerateDailyReportForUni(r.Context(), chi.URLParam(r, "uniId"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: summary})
}

func (h *HTTPHandler) GetVendorReport(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.reports.GetInventoryReport(r.Context(), chi.URLParam(r, "vendorId"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: report})
}

// reportDate reads the optional {"date": "YYYY-MM-DD"} body.
func (h *HTTPHandler) reportDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req reportRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return time.Time{}, false
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return time.Time{}, false
	}
	return date, true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC(), nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, domain.Validation("Invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	writeJSON(w, status, Response{Success: false, Message: domain.Message(err)})
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
