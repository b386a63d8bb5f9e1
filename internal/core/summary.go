package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// SortCategoryAmounts orders by amount descending, then by name.
func SortCategoryAmounts(items []CategoryAmount) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Amount != items[j].Amount {
			return items[i].Amount > items[j].Amount
		}
		return items[i].Name < items[j].Name
	})
}

// CategoryAmountsFromMap flattens a name->amount map into a sorted slice.
func CategoryAmountsFromMap(m map[string]float64) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for name, amount := range m {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	SortCategoryAmounts(out)
	return out
}
