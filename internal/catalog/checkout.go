package catalog

// CheckoutItem is the payload handed to the billing page when a product is bought. CreatedAt is
// in Unix milliseconds.
type CheckoutItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Size      string  `json:"size"`
	Image     string  `json:"image"`
	CreatedAt int64   `json:"createdAt"`
}
