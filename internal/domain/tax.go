package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTaxRatePercent is the flat GST rate applied when no rate is
// configured.
var DefaultTaxRatePercent = decimal.NewFromInt(18)

// TaxBreakdown is the jurisdiction-resolved tax for a taxable amount.
// Either the two intra-state components are set (CGST+SGST summing to the
// flat rate) or the single cross-state component is (IGST at the full
// rate), never both.
type TaxBreakdown struct {
	CGST decimal.Decimal
	SGST decimal.Decimal
	IGST decimal.Decimal
}

// Total returns the combined tax amount.
func (t TaxBreakdown) Total() decimal.Decimal {
	return t.CGST.Add(t.SGST).Add(t.IGST)
}

// Intra reports whether the split intra-jurisdiction rule applied.
func (t TaxBreakdown) Intra() bool {
	return t.IGST.IsZero() && (!t.CGST.IsZero() || !t.SGST.IsZero())
}

// ResolveTax applies the jurisdiction rule: when the client's tax code
// matches the issuing company's (case-insensitive, trimmed) the flat rate
// splits evenly into CGST and SGST; otherwise, or when either code is
// missing, the full rate applies as IGST. Missing codes default to the
// cross-jurisdiction branch since under-taxing is the worse failure.
func ResolveTax(taxable decimal.Decimal, clientCode, companyCode string, ratePercent decimal.Decimal) TaxBreakdown {
	if ratePercent.IsZero() || ratePercent.IsNegative() {
		ratePercent = DefaultTaxRatePercent
	}
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}

	client := strings.ToUpper(strings.TrimSpace(clientCode))
	company := strings.ToUpper(strings.TrimSpace(companyCode))

	if client != "" && company != "" && client == company {
		half := taxable.Mul(ratePercent).Div(hundred).Div(decimal.NewFromInt(2)).Round(2)
		return TaxBreakdown{CGST: half, SGST: half}
	}

	return TaxBreakdown{
		IGST: taxable.Mul(ratePercent).Div(hundred).Round(2),
	}
}
