package convo

import (
	"strings"

	"salesbot/internal/intent"
	"salesbot/internal/repo"
)

// mergeCartItem adds the product to the cart, summing quantities when the
// product is already present.
func mergeCartItem(cart []repo.CartItem, product repo.Product, qty int) []repo.CartItem {
	if qty < 1 {
		qty = 1
	}
	for i := range cart {
		if cart[i].ProductID == product.ID {
			cart[i].Qty += qty
			cart[i].Price = product.Price
			return cart
		}
	}
	return append(cart, repo.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Qty:       qty,
		Price:     product.Price,
	})
}

// applyCartModification interprets a modify_cart item reference against the
// current cart. Quantity zero or negative removes the line. Returns the new
// cart and whether a matching line was found.
func applyCartModification(cart []repo.CartItem, ref intent.Item) ([]repo.CartItem, bool) {
	name := strings.TrimSpace(strings.ToLower(ref.Name))
	if name == "" {
		return cart, false
	}
	for i := range cart {
		if !strings.Contains(strings.ToLower(cart[i].Name), name) {
			continue
		}
		if ref.Qty <= 0 {
			return append(cart[:i], cart[i+1:]...), true
		}
		cart[i].Qty = ref.Qty
		return cart, true
	}
	return cart, false
}

func cartTotal(cart []repo.CartItem) float64 {
	var total float64
	for _, item := range cart {
		total += item.Price * float64(item.Qty)
	}
	return total
}
