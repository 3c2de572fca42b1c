package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Cents rounds a monetary amount to two decimal places.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Sum adds amounts and rounds the total to the cent.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return Cents(total)
}

// Percent returns part/whole*100 without rounding.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	return part.Div(whole).Mul(hundred)
}
