package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// TotalsSummary is the result of a totals computation over line items and
// a quotation-level discount. Invariant: Total = Subtotal - Discount + Tax
// once tax is resolved, and Discount never exceeds Subtotal.
type TotalsSummary struct {
	Subtotal          decimal.Decimal
	LineDiscount      decimal.Decimal
	QuotationDiscount decimal.Decimal
	Discount          decimal.Decimal
	Taxable           decimal.Decimal
}

// ComputeTotals sums line amounts (which already reflect per-line
// discounts) and applies the quotation-level percentage discount, clamped
// so the combined discount never exceeds the subtotal.
func ComputeTotals(lines []LineItem, discountPercent decimal.Decimal) TotalsSummary {
	subtotal := decimal.Zero
	lineDiscount := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].Amount)
		lineDiscount = lineDiscount.Add(lines[i].LineDiscount)
	}

	if discountPercent.IsNegative() {
		discountPercent = decimal.Zero
	}
	quotationDiscount := subtotal.Mul(discountPercent).Div(hundred).Round(2)
	if quotationDiscount.GreaterThan(subtotal) {
		quotationDiscount = subtotal
	}

	discount := lineDiscount.Add(quotationDiscount)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	return TotalsSummary{
		Subtotal:          subtotal,
		LineDiscount:      lineDiscount,
		QuotationDiscount: quotationDiscount,
		Discount:          discount,
		Taxable:           subtotal.Sub(quotationDiscount),
	}
}

// Total applies the documented invariant over an already-resolved tax
// amount.
func (t TotalsSummary) Total(tax decimal.Decimal) decimal.Decimal {
	total := t.Subtotal.Sub(t.QuotationDiscount).Add(tax)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
