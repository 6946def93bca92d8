package domain

import "slices"

// StockLevel is the stock-check contract shared by both item kinds. A level is
// resolved once from an Inventory and then used without branching on Kind.
type StockLevel interface {
	ItemID() string
	Kind() Kind
	// CheckAvailable reports whether qty units can be taken right now.
	CheckAvailable(qty int) error
	// Consume returns the level after taking qty units.
	Consume(qty int) (StockLevel, error)
}

type RetailStock struct {
	Item     string
	Quantity int
}

func (s RetailStock) ItemID() string { return s.Item }
func (s RetailStock) Kind() Kind     { return KindRetail }

func (s RetailStock) CheckAvailable(qty int) error {
	if qty > s.Quantity {
		return &StockError{ItemID: s.Item, Kind: KindRetail, Requested: qty, Available: s.Quantity}
	}
	return nil
}

func (s RetailStock) Consume(qty int) (StockLevel, error) {
	if qty > s.Quantity {
		return s, &StockError{ItemID: s.Item, Kind: KindRetail, Requested: qty, Available: -1}
	}
	return RetailStock{Item: s.Item, Quantity: s.Quantity - qty}, nil
}

// ProduceStock is made to order: availability is a vendor switch, not a count.
type ProduceStock struct {
	Item      string
	Available bool
}

func (s ProduceStock) ItemID() string { return s.Item }
func (s ProduceStock) Kind() Kind     { return KindProduce }

func (s ProduceStock) CheckAvailable(qty int) error {
	if !s.Available {
		return &StockError{
			ItemID:    s.Item,
			Kind:      KindProduce,
			Requested: qty,
			Available: 0,
			Message:   "Produce item is not available",
		}
	}
	return nil
}

// Consume leaves availability untouched.
func (s ProduceStock) Consume(int) (StockLevel, error) {
	return s, nil
}

// Inventory is a vendor's live stock snapshot.
type Inventory struct {
	VendorID string
	Retail   map[string]int
	Produce  map[string]bool
}

func NewInventory(vendorID string) Inventory {
	return Inventory{
		VendorID: vendorID,
		Retail:   make(map[string]int),
		Produce:  make(map[string]bool),
	}
}

// Stock resolves the level for (itemID, kind); ok is false when the vendor
// does not carry the item.
func (inv Inventory) Stock(itemID string, kind Kind) (StockLevel, bool) {
	switch kind {
	case KindRetail:
		q, ok := inv.Retail[itemID]
		return RetailStock{Item: itemID, Quantity: q}, ok
	case KindProduce:
		a, ok := inv.Produce[itemID]
		return ProduceStock{Item: itemID, Available: a}, ok
	}
	return nil, false
}

func NotCarried(kind Kind) error {
	return Validation("Vendor does not carry this %s item", kind)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
