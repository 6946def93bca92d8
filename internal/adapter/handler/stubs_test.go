package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

type stubCarts struct {
	addErr    error
	added     []string
	deltas    []int
	changeErr error
	view      domain.CartView
}

func (s *stubCarts) AddItem(_ context.Context, userID, itemID string, kind domain.Kind, qty int, vendorID string) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, userID+"/"+itemID+"/"+string(kind)+"/"+vendorID)
	return nil
}

func (s *stubCarts) ChangeQuantity(_ context.Context, _, _ string, _ domain.Kind, delta int) error {
	s.deltas = append(s.deltas, delta)
	return s.changeErr
}

func (s *stubCarts) RemoveItem(context.Context, string, string, domain.Kind) error { return nil }

func (s *stubCarts) GetCartDetails(context.Context, string) (domain.CartView, error) {
	return s.view, nil
}

func (s *stubCarts) GetExtras(context.Context, string) ([]domain.CatalogItem, error) {
	return nil, nil
}

type stubOrders struct {
	placed   service.PlaceOrderRequest
	result   service.PlaceOrderResult
	placeErr error
	advanced domain.OrderStatus
}

func (s *stubOrders) PlaceOrder(_ context.Context, req service.PlaceOrderRequest) (service.PlaceOrderResult, error) {
	s.placed = req
	return s.result, s.placeErr
}

func (s *stubOrders) AdvanceStatus(_ context.Context, _ string, next domain.OrderStatus) error {
	s.advanced = next
	return nil
}

type stubPayments struct {
	got service.VerifyRequest
	res service.Settlement
	err error
}

func (s *stubPayments) VerifyAndSettle(_ context.Context, req service.VerifyRequest) (service.Settlement, error) {
	s.got = req
	return s.res, s.err
}

type stubReports struct {
	date    time.Time
	created bool
	report  *domain.InventoryReport
	err     error
}

func (s *stubReports) GenerateDailyReport(_ context.Context, _ string, date time.Time) (bool, error) {
	s.date = date
	return s.created, s.err
}

func (s *stubReports) GenerateDailyReportForUni(_ context.Context, _ string, date time.Time) (domain.UniReportSummary, error) {
	s.date = date
	return domain.UniReportSummary{Total: 2, Created: 1}, s.err
}

func (s *stubReports) GetInventoryReport(_ context.Context, _ string, date time.Time) (*domain.InventoryReport, error) {
	s.date = date
	return s.report, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
