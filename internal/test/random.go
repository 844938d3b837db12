package test

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomID returns prefix followed by a dash and n random upper-case characters.
func RandomID(prefix string, n int) string {
	if n <= 0 {
		n = 1
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return prefix + "-" + string(buf)
}

// RandomIntent builds a valid intent with quantity in [1, maxQuantity] and a
// total of at most 1000.00 per unit.
func RandomIntent(maxQuantity int) model.OrderIntent {
	if maxQuantity <= 0 {
		maxQuantity = 1
	}
	qty := 1 + rand.IntN(maxQuantity)
	cents := int64(qty) * (1 + rand.Int64N(100000))
	return model.OrderIntent{
		CustomerID:  RandomID("CUST", 6),
		ProductID:   RandomID("P", 4),
		Quantity:    qty,
		TotalAmount: decimal.New(cents, -2),
	}
}
