package stock

import "sort"

// Result is the partition of a user's inventory produced by Scan.
type Result struct {
	Low []Item
	Out []Item
}

// Empty reports whether nothing crossed a threshold.
func (r Result) Empty() bool {
	return len(r.Low) == 0 && len(r.Out) == 0
}

// Scan partitions items into low-stock and out-of-stock sets, preserving
// input order within each set. Both slices are non-nil.
func Scan(items []Item, global int) Result {
	res := Result{Low: []Item{}, Out: []Item{}}
	for _, it := range items {
		switch Classify(it, global) {
		case Out:
			res.Out = append(res.Out, it)
		case Low:
			res.Low = append(res.Low, it)
		}
	}
	return res
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// CategoryStats aggregates items sharing a category label.
type CategoryStats struct {
	Category      string `json:"category"`
	Items         int    `json:"items"`
	TotalQuantity int    `json:"totalQuantity"`
}

// Summary is the statistics view of a user's inventory.
type Summary struct {
	TotalItems      int             `json:"totalItems"`
	TotalQuantity   int             `json:"totalQuantity"`
	LowStock        int             `json:"lowStock"`
	OutOfStock      int             `json:"outOfStock"`
	GlobalThreshold int             `json:"globalThreshold"`
	Categories      []CategoryStats `json:"categories"`
}

// Uncategorized labels items with an empty category.
const Uncategorized = "Sem categoria"

// Summarize computes inventory statistics. Categories are sorted by item
// count, then name.
func Summarize(items []Item, global int) Summary {
	s := Summary{GlobalThreshold: global, Categories: []CategoryStats{}}
	byCat := make(map[string]*CategoryStats)
	for _, it := range items {
		q := it.Quantity.Int()
		s.TotalItems++
		s.TotalQuantity += q
		switch Classify(it, global) {
		case Out:
			s.OutOfStock++
		case Low:
			s.LowStock++
		}

		cat := it.Category
		if cat == "" {
			cat = Uncategorized
		}
		cs, ok := byCat[cat]
		if !ok {
			cs = &CategoryStats{Category: cat}
			byCat[cat] = cs
		}
		cs.Items++
		cs.TotalQuantity += q
	}

	for _, cs := range byCat {
		s.Categories = append(s.Categories, *cs)
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		if s.Categories[i].Items != s.Categories[j].Items {
			return s.Categories[i].Items > s.Categories[j].Items
		}
		return s.Categories[i].Category < s.Categories[j].Category
	})
	return s
}
