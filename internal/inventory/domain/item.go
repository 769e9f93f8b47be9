package inventory

// Item is the stock position of a product.
type Item struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
	Reserved  int    `json:"reserved"`
}

// Available returns the quantity that can still be reserved.
func (i Item) Available() int {
	if i.OnHand <= i.Reserved {
		return 0
	}
	return i.OnHand - i.Reserved
}

// Valid reports whether 0 <= reserved <= on hand.
func (i Item) Valid() bool {
	return i.Reserved >= 0 && i.Reserved <= i.OnHand
}
