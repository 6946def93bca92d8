package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDirectory

type fakeDirectory struct {
	users   map[string]domain.User
	vendors map[string]domain.Vendor
	unis    map[string]domain.University
	items   map[string]domain.Item
}

func itemKey(itemID string, kind domain.Kind) string {
	return string(kind) + "/" + itemID
}

func (d *fakeDirectory) GetUser(_ context.Context, userID string) (*domain.User, error) {
	if u, ok := d.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (d *fakeDirectory) GetVendor(_ context.Context, vendorID string) (*domain.Vendor, error) {
	if v, ok := d.vendors[vendorID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (d *fakeDirectory) GetUniversity(_ context.Context, uniID string) (*domain.University, error) {
	if u, ok := d.unis[uniID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (d *fakeDirectory) GetItem(_ context.Context, itemID string, kind domain.Kind) (*domain.Item, error) {
	if it, ok := d.items[itemKey(itemID, kind)]; ok {
		return &it, nil
	}
	return nil, nil
}

func (d *fakeDirectory) ListVendorIDsByUni(_ context.Context, uniID string) ([]string, error) {
	var ids []string
	for id, v := range d.vendors {
		if v.UniID == uniID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// fakeInventory

type fakeInventory struct {
	mu         sync.Mutex
	retail     map[string]map[string]int
	produce    map[string]map[string]bool
	consumeErr error
}

func (f *fakeInventory) GetVendorInventory(_ context.Context, vendorID string) (domain.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := domain.NewInventory(vendorID)
	for id, q := range f.retail[vendorID] {
		inv.Retail[id] = q
	}
	for id, a := range f.produce[vendorID] {
		inv.Produce[id] = a
	}
	return inv, nil
}

func (f *fakeInventory) ConsumeStock(ctx context.Context, vendorID string, lines []domain.OrderLine) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	stock := f.retail[vendorID]
	for _, l := range lines {
		if l.Kind == domain.KindRetail && stock[l.ItemID] < l.Quantity {
			return nil, &domain.StockError{ItemID: l.ItemID, Kind: l.Kind, Requested: l.Quantity, Available: -1}
		}
	}
	remaining := make(map[string]int)
	for _, l := range lines {
		if l.Kind == domain.KindRetail {
			stock[l.ItemID] -= l.Quantity
			remaining[l.ItemID] = stock[l.ItemID]
		}
	}
	return remaining, nil
}

func (f *fakeInventory) setRetail(vendorID, itemID string, qty int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retail[vendorID][itemID] = qty
}

func (f *fakeInventory) retailQty(vendorID, itemID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retail[vendorID][itemID]
}

// fakeCarts stores one versioned cart per user.

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	// lose makes the next n SaveCart calls fail as if a concurrent write won
	lose     int
	clearErr error
}

func copyCart(c domain.Cart) domain.Cart {
	c.Entries = slices.Clone(c.Entries)
	return c
}

func (f *fakeCarts) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[userID]; ok {
		return copyCart(c), nil
	}
	return domain.Cart{UserID: userID}, nil
}

func (f *fakeCarts) SaveCart(_ context.Context, cart domain.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.carts[cart.UserID]
	if f.lose > 0 {
		f.lose--
		stored.UserID = cart.UserID
		stored.Version++
		f.carts[cart.UserID] = stored
		return port.ErrOptimisticLock
	}
	if stored.Version != cart.Version {
		return port.ErrOptimisticLock
	}
	cart.Version++
	f.carts[cart.UserID] = copyCart(cart)
	return nil
}

func (f *fakeCarts) ClearCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	c := f.carts[userID]
	c.UserID = userID
	c.Clear()
	c.Version++
	f.carts[userID] = c
	return nil
}

func (f *fakeCarts) get(userID string) domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyCart(f.carts[userID])
}

// fakeOrders fails calls on a done context, as the SQL driver does.

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	payments map[string]domain.Payment
	linkErr  error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.ID]; ok {
		return fmt.Errorf("duplicate order %s", order.ID)
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		return &o, nil
	}
	return nil, nil
}

func (f *fakeOrders) SetGatewayOrderRef(ctx context.Context, orderID, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.GatewayOrderRef = ref
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrders) TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return port.ErrOptimisticLock
	}
	o.Status = to
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrders) BeginSettlement(ctx context.Context, p domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[p.OrderID]
	if !ok || o.Status != domain.OrderStatusPendingPayment {
		return port.ErrOptimisticLock
	}
	if _, dup := f.payments[p.OrderID]; dup {
		return port.ErrOptimisticLock
	}
	o.Status = domain.OrderStatusInProgress
	o.PaymentID = p.ID
	f.orders[p.OrderID] = o
	f.payments[p.OrderID] = p
	return nil
}

func (f *fakeOrders) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, o := range f.orders {
		if o.Status == domain.OrderStatusPendingPayment && o.ReservationExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeOrders) get(orderID string) domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[orderID]
}

func (f *fakeOrders) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

// fakeReports enforces one report per (vendor, day).

type fakeReports struct {
	mu      sync.Mutex
	reports map[string]domain.InventoryReport
	byID    map[string]string
	inserts int
	// beforeInsert runs once, unlocked, ahead of the next insert
	beforeInsert func()
	recordErr    error
}

func reportKey(vendorID string, day time.Time) string {
	return vendorID + "|" + domain.Day(day).Format(time.DateOnly)
}

func (f *fakeReports) FindReport(_ context.Context, vendorID string, day time.Time) (*domain.InventoryReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportKey(vendorID, day)]
	if !ok {
		return nil, nil
	}
	r.Entries = slices.Clone(r.Entries)
	return &r, nil
}

func (f *fakeReports) InsertReport(_ context.Context, report domain.InventoryReport) error {
	if hook := f.beforeInsert; hook != nil {
		f.beforeInsert = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := reportKey(report.VendorID, report.Day)
	if _, ok := f.reports[key]; ok {
		return domain.ErrReportConflict
	}
	report.Entries = slices.Clone(report.Entries)
	f.reports[key] = report
	f.byID[report.ID] = key
	f.inserts++
	return nil
}

func (f *fakeReports) RecordSales(_ context.Context, reportID string, sales []domain.SaleLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	key, ok := f.byID[reportID]
	if !ok {
		return fmt.Errorf("report %s not found", reportID)
	}
	r := f.reports[key]
	for _, s := range sales {
		r.Entries = domain.ApplySale(r.Entries, s)
	}
	f.reports[key] = r
	return nil
}

func (f *fakeReports) put(r domain.InventoryReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := reportKey(r.VendorID, r.Day)
	f.reports[key] = r
	f.byID[r.ID] = key
}

func (f *fakeReports) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

type fakeHistory struct {
	mu     sync.Mutex
	orders map[string][]string
}

func (f *fakeHistory) AppendOrderHistory(_ context.Context, userID, _, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.orders[userID], orderID) {
		f.orders[userID] = append(f.orders[userID], orderID)
	}
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (f *fakeCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeCache) ReleaseIdempotency(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

// fakeGateway signs as "<orderRef>|<paymentRef>" so tests can forge valid signatures.

type fakeGateway struct {
	intentErr error
	intents   int
}

func fakeSignature(orderRef, paymentRef string) string {
	return orderRef + "|" + paymentRef
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount decimal.Decimal, currency, reference string) (domain.PaymentIntent, error) {
	if g.intentErr != nil {
		return domain.PaymentIntent{}, g.intentErr
	}
	g.intents++
	return domain.PaymentIntent{
		KeyID:           "rzp_test",
		GatewayOrderRef: "gw_" + reference,
		Amount:          amount.Shift(2).IntPart(),
		Currency:        currency,
	}, nil
}

func (g *fakeGateway) VerifySignature(orderRef, paymentRef, signature string) bool {
	return signature == fakeSignature(orderRef, paymentRef)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *fakePublisher) Publish(ctx context.Context, e domain.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture wires all services over one set of fakes seeded with a small campus:
//
//	uni-1: vendor-1, vendor-2; uni-2: vendor-3
//	vendor-1 retail: chips=5 @20, soda=40 @30; produce: dosa (available) @60, idli (off) @40, tea (available) @10
//	vendor-2 retail: chips=8
type fixture struct {
	directory *fakeDirectory
	inventory *fakeInventory
	carts     *fakeCarts
	orders    *fakeOrders
	reports   *fakeReports
	history   *fakeHistory
	cache     *fakeCache
	gateway   *fakeGateway
	publisher *fakePublisher

	cart    *CartService
	order   *OrderService
	payment *PaymentService
	ledger  *LedgerService

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	item := func(id string, kind domain.Kind, uni string, price int64) domain.Item {
		return domain.Item{ID: id, Kind: kind, UniID: uni, Name: "Item " + id, Price: decimal.NewFromInt(price), Unit: "pc"}
	}
	items := []domain.Item{
		item("chips", domain.KindRetail, "uni-1", 20),
		item("soda", domain.KindRetail, "uni-1", 30),
		item("dosa", domain.KindProduce, "uni-1", 60),
		item("idli", domain.KindProduce, "uni-1", 40),
		item("tea", domain.KindProduce, "uni-1", 10),
		item("pen", domain.KindRetail, "uni-2", 5),
	}
	f := &fixture{
		directory: &fakeDirectory{
			users: map[string]domain.User{
				"user-1": {ID: "user-1", FullName: "Asha"},
				"user-2": {ID: "user-2", FullName: "Ravi"},
			},
			vendors: map[string]domain.Vendor{
				"vendor-1": {ID: "vendor-1", FullName: "North Canteen", UniID: "uni-1"},
				"vendor-2": {ID: "vendor-2", FullName: "South Canteen", UniID: "uni-1"},
				"vendor-3": {ID: "vendor-3", FullName: "Stationers", UniID: "uni-2"},
			},
			unis: map[string]domain.University{
				"uni-1": {ID: "uni-1", Name: "First University"},
				"uni-2": {ID: "uni-2", Name: "Second University"},
			},
			items: make(map[string]domain.Item),
		},
		inventory: &fakeInventory{
			retail: map[string]map[string]int{
				"vendor-1": {"chips": 5, "soda": 40},
				"vendor-2": {"chips": 8},
				"vendor-3": {"pen": 100},
			},
			produce: map[string]map[string]bool{
				"vendor-1": {"dosa": true, "idli": false, "tea": true},
			},
		},
		carts:     &fakeCarts{carts: make(map[string]domain.Cart)},
		orders:    &fakeOrders{orders: make(map[string]domain.Order), payments: make(map[string]domain.Payment)},
		reports:   &fakeReports{reports: make(map[string]domain.InventoryReport), byID: make(map[string]string)},
		history:   &fakeHistory{orders: make(map[string][]string)},
		cache:     &fakeCache{keys: make(map[string]bool)},
		gateway:   &fakeGateway{},
		publisher: &fakePublisher{},
		now:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	for _, it := range items {
		f.directory.items[itemKey(it.ID, it.Kind)] = it
	}

	logger := discardLogger()
	clock := func() time.Time { return f.now }

	f.cart = NewCartService(f.carts, f.directory, f.inventory, logger)
	f.order = NewOrderService(f.orders, f.carts, f.directory, f.inventory, f.gateway, "INR", logger)
	f.order.now = clock
	f.ledger = NewLedgerService(f.inventory, f.reports, f.history, f.carts, f.directory, logger)
	f.ledger.now = clock
	f.ledger.backOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	f.payment = NewPaymentService(f.orders, f.cache, f.gateway, f.ledger, f.publisher, logger)
	f.payment.now = clock
	return f
}

// place checks out userID's cart as orderType and returns the result with a
// correctly signed verification request.
func (f *fixture) place(t *testing.T, userID string, orderType domain.OrderType) (PlaceOrderResult, VerifyRequest) {
	t.Helper()
	res, err := f.order.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:         userID,
		OrderType:      orderType,
		CollectorName:  "Asha",
		CollectorPhone: "9999999999",
		Address:        "Hostel 4",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	ref := res.Intent.GatewayOrderRef
	return res, VerifyRequest{
		OrderID:           res.OrderID,
		GatewayOrderRef:   ref,
		GatewayPaymentRef: "pay_" + res.OrderID,
		Signature:         fakeSignature(ref, "pay_"+res.OrderID),
	}
}
