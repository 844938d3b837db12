package model

// InventoryItem describes available stock of one product.
type InventoryItem struct {
	ProductID string
	Stock     int
}
