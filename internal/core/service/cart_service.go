package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

const (
	maxCartWriteAttempts = 3
	lookupConcurrency    = 8
)

type CartService struct {
	carts     port.CartRepository
	directory port.Directory
	inventory port.InventoryRepository
	logger    *slog.Logger
}

func NewCartService(carts port.CartRepository, directory port.Directory, inventory port.InventoryRepository, logger *slog.Logger) *CartService {
	return &CartService{
		carts:     carts,
		directory: directory,
		inventory: inventory,
		logger:    logger,
	}
}

// AddItem puts qty units of an item from vendorID into the user's cart.
// Nothing is reserved: stock is checked again at order placement and
// decremented only at settlement.
func (s *CartService) AddItem(ctx context.Context, userID, itemID string, kind domain.Kind, qty int, vendorID string) (err error) {
	ctx, span := startSpan(ctx, "CartService.AddItem",
		attribute.String("user.id", userID), attribute.String("item.id", itemID))
	defer func() { endSpan(span, err) }()

	if err := kind.Validate(); err != nil {
		return err
	}
	if qty <= 0 {
		return domain.Validation("Quantity must be a positive number")
	}
	if err := requireUser(ctx, s.directory, userID); err != nil {
		return err
	}
	stock, err := s.lookupStock(ctx, vendorID, itemID, kind)
	if err != nil {
		return err
	}

	err = s.mutate(ctx, userID, func(cart *domain.Cart) error {
		if !cart.IsEmpty() && cart.VendorID != vendorID {
			return domain.CartPolicy("Cart can contain items from only one vendor")
		}
		newQty := cart.Quantity(itemID, kind) + qty
		if err := checkQuantity(stock, newQty); err != nil {
			return err
		}
		cart.Set(itemID, kind, newQty)
		cart.Bind(vendorID)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("cart item added",
		slog.String("user_id", userID), slog.String("item_id", itemID), slog.Int("qty", qty))
	return nil
}

// ChangeQuantity adjusts an entry by delta. Increases are validated like
// AddItem against the bound vendor; reaching zero removes the entry.
func (s *CartService) ChangeQuantity(ctx context.Context, userID, itemID string, kind domain.Kind, delta int) (err error) {
	ctx, span := startSpan(ctx, "CartService.ChangeQuantity",
		attribute.String("user.id", userID), attribute.Int("delta", delta))
	defer func() { endSpan(span, err) }()

	if err := kind.Validate(); err != nil {
		return err
	}
	if delta == 0 {
		return domain.Validation("Quantity change must be non-zero")
	}
	if err := requireUser(ctx, s.directory, userID); err != nil {
		return err
	}

	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		current := cart.Quantity(itemID, kind)
		if current == 0 && (delta < 0 || cart.IsEmpty()) {
			return domain.Validation("Item not in cart")
		}
		newQty := current + delta
		if newQty < 0 {
			return domain.Validation("Quantity cannot go below zero")
		}
		if delta > 0 {
			stock, err := s.lookupStock(ctx, cart.VendorID, itemID, kind)
			if err != nil {
				return err
			}
			if err := checkQuantity(stock, newQty); err != nil {
				return err
			}
		}
		cart.Set(itemID, kind, newQty)
		return nil
	})
}

// RemoveItem drops (itemID, kind) from the cart; removing something absent is not an error.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string, kind domain.Kind) (err error) {
	ctx, span := startSpan(ctx, "CartService.RemoveItem", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if err := kind.Validate(); err != nil {
		return err
	}
	if err := requireUser(ctx, s.directory, userID); err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		cart.Remove(itemID, kind)
		return nil
	})
}

// GetCartDetails joins the cart with current catalog data. It never writes.
func (s *CartService) GetCartDetails(ctx context.Context, userID string) (view domain.CartView, err error) {
	ctx, span := startSpan(ctx, "CartService.GetCartDetails", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if err := requireUser(ctx, s.directory, userID); err != nil {
		return domain.CartView{}, err
	}
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() {
		return domain.CartView{Lines: []domain.CartLine{}}, nil
	}

	view.VendorID = cart.VendorID
	vendor, err := s.directory.GetVendor(ctx, cart.VendorID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("get vendor: %w", err)
	}
	if vendor != nil {
		view.VendorName = vendor.FullName
	}

	items, err := s.fetchItems(ctx, cart.Entries)
	if err != nil {
		return domain.CartView{}, err
	}

	view.Lines = make([]domain.CartLine, 0, len(cart.Entries))
	for i, e := range cart.Entries {
		item := items[i]
		if item == nil {
			continue
		}
		view.Lines = append(view.Lines, domain.CartLine{
			ItemID:     e.ItemID,
			Kind:       e.Kind,
			Name:       item.Name,
			Image:      item.Image,
			Unit:       item.Unit,
			Type:       item.Type,
			Price:      item.Price,
			Quantity:   e.Quantity,
			TotalPrice: item.Price.Mul(decimalInt(e.Quantity)),
		})
	}
	return view, nil
}

// GetExtras suggests items of the bound vendor not yet in the cart: retail
// with more stock than a single cart may take, and available produce.
func (s *CartService) GetExtras(ctx context.Context, userID string) (extras []domain.CatalogItem, err error) {
	ctx, span := startSpan(ctx, "CartService.GetExtras", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if err := requireUser(ctx, s.directory, userID); err != nil {
		return nil, err
	}
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() || cart.VendorID == "" {
		return []domain.CatalogItem{}, nil
	}

	inv, err := s.inventory.GetVendorInventory(ctx, cart.VendorID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	inCart := make(map[string]bool, len(cart.Entries))
	for _, e := range cart.Entries {
		inCart[e.ItemID] = true
	}

	var candidates []domain.CartEntry
	for itemID, qty := range inv.Retail {
		if qty > domain.MaxRetailPerItem && !inCart[itemID] {
			candidates = append(candidates, domain.CartEntry{ItemID: itemID, Kind: domain.KindRetail})
		}
	}
	for itemID, available := range inv.Produce {
		if available && !inCart[itemID] {
			candidates = append(candidates, domain.CartEntry{ItemID: itemID, Kind: domain.KindProduce})
		}
	}
	slices.SortFunc(candidates, func(a, b domain.CartEntry) int {
		if a.Kind != b.Kind {
			if a.Kind == domain.KindRetail {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})

	items, err := s.fetchItems(ctx, candidates)
	if err != nil {
		return nil, err
	}
	extras = make([]domain.CatalogItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		extras = append(extras, domain.CatalogItem{
			ItemID: item.ID,
			Kind:   item.Kind,
			Name:   item.Name,
			Price:  item.Price,
			Image:  item.Image,
		})
	}
	return extras, nil
}

// mutate applies fn to a fresh copy of the cart and writes it conditionally,
// retrying when another write won the race.
func (s *CartService) mutate(ctx context.Context, userID string, fn func(*domain.Cart) error) error {
	for attempt := 1; ; attempt++ {
		cart, err := s.carts.GetCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		cart.UserID = userID
		if err := fn(&cart); err != nil {
			return err
		}
		err = s.carts.SaveCart(ctx, cart)
		if err == nil {
			return nil
		}
		if !errors.Is(err, port.ErrOptimisticLock) || attempt == maxCartWriteAttempts {
			return fmt.Errorf("save cart: %w", err)
		}
		s.logger.Debug("cart write conflict, retrying",
			slog.String("user_id", userID), slog.Int("attempt", attempt))
	}
}

// lookupStock validates the vendor/item pairing and resolves the vendor's
// stock level for the item.
func (s *CartService) lookupStock(ctx context.Context, vendorID, itemID string, kind domain.Kind) (domain.StockLevel, error) {
	vendor, err := s.directory.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	if vendor == nil {
		return nil, domain.NotFound("Vendor not found")
	}
	item, err := s.directory.GetItem(ctx, itemID, kind)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, domain.NotFound("Item not found")
	}
	if vendor.UniID == "" || vendor.UniID != item.UniID {
		return nil, domain.Validation("Vendor does not carry item for that university")
	}

	inv, err := s.inventory.GetVendorInventory(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	stock, ok := inv.Stock(itemID, kind)
	if !ok {
		return nil, domain.NotCarried(kind)
	}
	return stock, nil
}

// checkQuantity enforces stock first, then the per-item cap.
func checkQuantity(stock domain.StockLevel, qty int) error {
	if err := stock.CheckAvailable(qty); err != nil {
		return err
	}
	if limit := stock.Kind().Cap(); qty > limit {
		return domain.Validation("Cannot exceed max quantity of %d for a single %s item", limit, stock.Kind())
	}
	return nil
}

// fetchItems resolves catalog entries concurrently; result[i] is nil when the
// item no longer exists.
func (s *CartService) fetchItems(ctx context.Context, entries []domain.CartEntry) ([]*domain.Item, error) {
	items := make([]*domain.Item, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, e := range entries {
		g.Go(func() error {
			item, err := s.directory.GetItem(ctx, e.ItemID, e.Kind)
			if err != nil {
				return fmt.Errorf("get item %s: %w", e.ItemID, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}
