package finance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders an amount the way the app displays money: "R$ 1234,50".
func FormatBRL(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	return sign + "R$ " + strings.Replace(amount.StringFixed(2), ".", ",", 1)
}
