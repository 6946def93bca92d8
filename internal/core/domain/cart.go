package domain

import "github.com/shopspring/decimal"

type CartEntry struct {
	ItemID   string `json:"itemId"`
	Kind     Kind   `json:"kind"`
	Quantity int    `json:"quantity"`
}

// Cart is a user's pending selection. All entries belong to VendorID; an
// empty cart has no vendor. Version is the compare-and-swap token of the
// stored document.
type Cart struct {
	UserID   string
	VendorID string
	Entries  []CartEntry
	Version  int64
}

func (c Cart) IsEmpty() bool {
	return len(c.Entries) == 0
}

func (c Cart) index(itemID string, kind Kind) int {
	for i, e := range c.Entries {
		if e.ItemID == itemID && e.Kind == kind {
			return i
		}
	}
	return -1
}

// Quantity returns the quantity held for (itemID, kind), 0 if absent.
func (c Cart) Quantity(itemID string, kind Kind) int {
	if i := c.index(itemID, kind); i >= 0 {
		return c.Entries[i].Quantity
	}
	return 0
}

// Set upserts the entry; qty <= 0 removes it.
func (c *Cart) Set(itemID string, kind Kind, qty int) {
	i := c.index(itemID, kind)
	switch {
	case qty <= 0 && i >= 0:
		c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
	case qty <= 0:
	case i >= 0:
		c.Entries[i].Quantity = qty
	default:
		c.Entries = append(c.Entries, CartEntry{ItemID: itemID, Kind: kind, Quantity: qty})
	}
	c.normalize()
}

func (c *Cart) Remove(itemID string, kind Kind) {
	c.Set(itemID, kind, 0)
}

// Bind sets the vendor on the first insertion.
func (c *Cart) Bind(vendorID string) {
	if c.VendorID == "" && !c.IsEmpty() {
		c.VendorID = vendorID
	}
}

func (c *Cart) Clear() {
	c.Entries = nil
	c.VendorID = ""
}

func (c *Cart) normalize() {
	if c.IsEmpty() {
		c.Entries = nil
		c.VendorID = ""
	}
}

// CartLine is one cart entry joined with catalog data.
type CartLine struct {
	ItemID     string          `json:"itemId"`
	Kind       Kind            `json:"kind"`
	Name       string          `json:"name"`
	Image      string          `json:"image,omitempty"`
	Unit       string          `json:"unit,omitempty"`
	Type       string          `json:"type,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type CartView struct {
	Lines      []CartLine `json:"cart"`
	VendorID   string     `json:"vendorId,omitempty"`
	VendorName string     `json:"vendorName,omitempty"`
}

// CatalogItem is a discovery suggestion from the bound vendor.
type CatalogItem struct {
	ItemID string          `json:"itemId"`
	Kind   Kind            `json:"kind"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Image  string          `json:"image,omitempty"`
}
