package handler

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

func dialGRPC(t *testing.T, h *GRPCHandler) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer()
	h.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPC_AddToCart(t *testing.T) {
	carts := &stubCarts{}
	conn := dialGRPC(t, NewGRPCHandler(carts, &stubOrders{}, &stubPayments{}, discardLogger()))

	var resp AddToCartResponse
	err := conn.Invoke(context.Background(), "/campus.v1.CampusService/AddToCart",
		&AddToCartRequest{UserID: "user-1", ItemID: "chips", Kind: "Retail", Quantity: 1, VendorID: "vendor-1"}, &resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"user-1/chips/Retail/vendor-1"}, carts.added)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	carts := &stubCarts{addErr: &domain.StockError{ItemID: "chips", Kind: domain.KindRetail, Requested: 9, Available: 5}}
	conn := dialGRPC(t, NewGRPCHandler(carts, &stubOrders{}, &stubPayments{}, discardLogger()))

	var resp AddToCartResponse
	err := conn.Invoke(context.Background(), "/campus.v1.CampusService/AddToCart",
		&AddToCartRequest{UserID: "user-1", ItemID: "chips", Kind: "Retail", Quantity: 9, VendorID: "vendor-1"}, &resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Aborted, st.Code())
	assert.Equal(t, "Only 5 unit(s) available", st.Message())

	err = conn.Invoke(context.Background(), "/campus.v1.CampusService/AddToCart",
		&AddToCartRequest{UserID: "user-1", ItemID: "chips", Kind: "Frozen", Quantity: 1}, &resp)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_PlaceOrderAndVerify(t *testing.T) {
	orders := &stubOrders{result: service.PlaceOrderResult{
		OrderID: "order-1",
		Total:   decimal.NewFromInt(285),
		Intent:  domain.PaymentIntent{GatewayOrderRef: "order_abc", Amount: 28500, Currency: "INR"},
	}}
	payments := &stubPayments{res: service.Settlement{OrderID: "order-1", PaymentID: "pay-1"}}
	conn := dialGRPC(t, NewGRPCHandler(&stubCarts{}, orders, payments, discardLogger()))

	var placed PlaceOrderResponse
	err := conn.Invoke(context.Background(), "/campus.v1.CampusService/PlaceOrder",
		&PlaceOrderRequest{UserID: "user-1", OrderType: "delivery", CollectorName: "Asha", CollectorPhone: "99", Address: "Hostel 4"}, &placed)
	require.NoError(t, err)
	assert.Equal(t, "285.00", placed.Total)
	assert.Equal(t, int64(28500), placed.Intent.Amount)
	assert.Equal(t, "Hostel 4", orders.placed.Address)

	var settled service.Settlement
	err = conn.Invoke(context.Background(), "/campus.v1.CampusService/VerifyPayment",
		&VerifyPaymentRequest{OrderID: "order-1", GatewayOrderRef: "order_abc", GatewayPaymentRef: "pay_xyz", Signature: "sig"}, &settled)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", settled.PaymentID)

	payments.err = domain.PaymentVerification("Payment verification failed")
	err = conn.Invoke(context.Background(), "/campus.v1.CampusService/VerifyPayment",
		&VerifyPaymentRequest{OrderID: "order-1"}, &settled)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
