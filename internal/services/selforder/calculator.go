package selforder

import (
	"math"

	"selforder-system/internal/models"
)

// CalculateTotals derives the money breakdown for a cart. Rates are
// percentages. Currency has no sub-unit: intermediate amounts stay in floating
// point and only the grand total is rounded, to the nearest whole unit.
func CalculateTotals(items []models.CartItem, taxRate, serviceRate float64) models.Totals {
	var subtotal int64
	itemCount := 0

	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
		itemCount += item.Quantity
	}

	taxAmount := float64(subtotal) * taxRate / 100
	serviceAmount := float64(subtotal) * serviceRate / 100
	grandTotal := int64(math.Round(float64(subtotal) * (1 + (taxRate+serviceRate)/100)))

	return models.Totals{
		Subtotal:            subtotal,
		TaxAmount:           taxAmount,
		ServiceChargeAmount: serviceAmount,
		GrandTotal:          grandTotal,
		ItemCount:           itemCount,
	}
}
