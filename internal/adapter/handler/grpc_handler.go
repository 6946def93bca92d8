package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

const grpcServiceName = "campus.v1.CampusService"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets clients call the service with content-subtype "json"
// without generated protobuf stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type AddToCartRequest struct {
	UserID   string `json:"userId"`
	ItemID   string `json:"itemId"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
	VendorID string `json:"vendorId"`
}

type AddToCartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PlaceOrderRequest struct {
	UserID         string `json:"userId"`
	OrderType      string `json:"orderType"`
	CollectorName  string `json:"collectorName"`
	CollectorPhone string `json:"collectorPhone"`
	Address        string `json:"address"`
}

type PlaceOrderResponse struct {
	OrderID string               `json:"orderId"`
	Total   string               `json:"total"`
	Intent  domain.PaymentIntent `json:"razorpayOptions"`
}

type VerifyPaymentRequest struct {
	OrderID           string `json:"orderId"`
	GatewayOrderRef   string `json:"razorpayOrderId"`
	GatewayPaymentRef string `json:"razorpayPaymentId"`
	Signature         string `json:"razorpaySignature"`
}

type GRPCHandler struct {
	carts    CartUseCase
	orders   OrderUseCase
	payments PaymentUseCase
	logger   *slog.Logger
}

func NewGRPCHandler(carts CartUseCase, orders OrderUseCase, payments PaymentUseCase, logger *slog.Logger) *GRPCHandler {
	return &GRPCHandler{carts: carts, orders: orders, payments: payments, logger: logger}
}

// Register mounts the handler on s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&campusServiceDesc, h)
}

func (h *GRPCHandler) AddToCart(ctx context.Context, req *AddToCartRequest) (*AddToCartResponse, error) {
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	if err := h.carts.AddItem(ctx, req.UserID, req.ItemID, kind, req.Quantity, req.VendorID); err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &AddToCartResponse{Success: true, Message: "Item added to cart."}, nil
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	orderType, err := domain.ParseOrderType(req.OrderType)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	res, err := h.orders.PlaceOrder(ctx, service.PlaceOrderRequest{
		UserID:         req.UserID,
		OrderType:      orderType,
		CollectorName:  req.CollectorName,
		CollectorPhone: req.CollectorPhone,
		Address:        req.Address,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &PlaceOrderResponse{OrderID: res.OrderID, Total: res.Total.StringFixed(2), Intent: res.Intent}, nil
}

func (h *GRPCHandler) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*service.Settlement, error) {
	res, err := h.payments.VerifyAndSettle(ctx, service.VerifyRequest{
		OrderID:           req.OrderID,
		GatewayOrderRef:   req.GatewayOrderRef,
		GatewayPaymentRef: req.GatewayPaymentRef,
		Signature:         req.Signature,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &res, nil
}

func (h *GRPCHandler) toStatus(ctx context.Context, err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.ErrorContext(ctx, "grpc call failed", slog.Any("error", err))
	}
	return status.Error(code, domain.Message(err))
}

func unaryHandler[Req any, Resp any](call func(*GRPCHandler, context.Context, *Req) (Resp, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		h := srv.(*GRPCHandler)
		if interceptor == nil {
			return call(h, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + grpcServiceName + "/" + method}
		return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
			return call(h, ctx, r.(*Req))
		})
	}
}

var campusServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddToCart", Handler: unaryHandler((*GRPCHandler).AddToCart, "AddToCart")},
		{MethodName: "PlaceOrder", Handler: unaryHandler((*GRPCHandler).PlaceOrder, "PlaceOrder")},
		{MethodName: "VerifyPayment", Handler: unaryHandler((*GRPCHandler).VerifyPayment, "VerifyPayment")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "campus/v1/campus.proto",
}
