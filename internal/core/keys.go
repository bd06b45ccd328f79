package core

import "sort"

// Cache keys, kept in one place so they do not spread across the code.
const (
	CacheKeyInventory       = "tvri_inventory_data"
	CacheKeyLastUpdate      = "tvri_last_update"
	CacheKeyBorrowedItems   = "tvri_borrowed_items"
	CacheKeyStats           = "tvri_stats"
	CacheKeyPendingRequests = "tvri_pending_requests"

	CacheKeyDemoInventory    = "demo_inventory_data"
	CacheKeyDemoTransactions = "demo_transactions"
)

// CacheKeys returns the fixed key set the application owns.
// Clear and Cleanup never touch keys outside this set.
func CacheKeys() []string {
	return []string{
		CacheKeyInventory,
		CacheKeyLastUpdate,
		CacheKeyBorrowedItems,
		CacheKeyStats,
		CacheKeyPendingRequests,
		CacheKeyDemoInventory,
		CacheKeyDemoTransactions,
	}
}

// InventoryDerivedKeys are invalidated after every successful mutation.
func InventoryDerivedKeys() []string {
	return []string{CacheKeyInventory, CacheKeyBorrowedItems, CacheKeyStats}
}

// EquipmentTypes lists the known equipment categories in display order.
var EquipmentTypes = []string{
	"camera",
	"laptop",
	"projector",
	"microphone",
	"speaker",
	"tablet",
	"monitor",
	"printer",
	"other",
}

// SortedCategories returns the inventory categories, known types first in
// display order, then any others alphabetically.
func SortedCategories(inv Inventory) []string {
	rank := make(map[string]int, len(EquipmentTypes))
	for i, t := range EquipmentTypes {
		rank[t] = i
	}
	out := make([]string, 0, len(inv))
	for k := range inv {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}
