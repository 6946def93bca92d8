package domain

import "time"

type ReportEntry struct {
	ItemID     string `json:"itemId"`
	Kind       Kind   `json:"kind"`
	Name       string `json:"name,omitempty"`
	OpeningQty int    `json:"openingQty"`
	SoldQty    int    `json:"soldQty"`
	ClosingQty int    `json:"closingQty"`
}

// InventoryReport is the ledger of one vendor for one UTC day.
type InventoryReport struct {
	ID         string        `json:"id"`
	VendorID   string        `json:"vendorId"`
	VendorName string        `json:"vendorName,omitempty"`
	Day        time.Time     `json:"date"`
	Entries    []ReportEntry `json:"entries"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Entry returns the entry for (itemID, kind), if any.
func (r *InventoryReport) Entry(itemID string, kind Kind) (ReportEntry, bool) {
	for _, e := range r.Entries {
		if e.ItemID == itemID && e.Kind == kind {
			return e, true
		}
	}
	return ReportEntry{}, false
}

// SaleLine is one settled order line. Remaining is the stock left after the
// sale (0 for produce).
type SaleLine struct {
	ItemID    string
	Kind      Kind
	Sold      int
	Remaining int
}

// ApplySale folds a sale into an entry set: an existing entry sells from its
// closing quantity, a new one is back-derived from the remaining stock.
func ApplySale(entries []ReportEntry, s SaleLine) []ReportEntry {
	for i := range entries {
		if entries[i].ItemID == s.ItemID && entries[i].Kind == s.Kind {
			entries[i].SoldQty += s.Sold
			if s.Kind == KindRetail {
				entries[i].ClosingQty -= s.Sold
			}
			return entries
		}
	}
	e := ReportEntry{ItemID: s.ItemID, Kind: s.Kind, SoldQty: s.Sold}
	if s.Kind == KindRetail {
		e.OpeningQty = s.Remaining + s.Sold
		e.ClosingQty = s.Remaining
	}
	return append(entries, e)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SeedReport builds a fresh report for day. Retail opening quantities carry
// forward prev's closing quantities where prev has the item, else the live
// stock.
func SeedReport(id, vendorID string, day time.Time, inv Inventory, prev *InventoryReport, now time.Time) InventoryReport {
	rep := InventoryReport{
		ID:        id,
		VendorID:  vendorID,
		Day:       Day(day),
		CreatedAt: now,
	}
	for _, itemID := range sortedKeys(inv.Retail) {
		qty := inv.Retail[itemID]
		if prev != nil {
			if e, ok := prev.Entry(itemID, KindRetail); ok {
				qty = e.ClosingQty
			}
		}
		rep.Entries = append(rep.Entries, ReportEntry{
			ItemID:     itemID,
			Kind:       KindRetail,
			OpeningQty: qty,
			ClosingQty: qty,
		})
	}
	return rep
}

type UniReportSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
}
