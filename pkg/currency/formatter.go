package currency

import (
	"fmt"
	"math"
	"strings"
)

type style struct {
	decimals  int
	thousands string
	decimal   string
}

var styles = map[string]style{
	"IDR": {decimals: 0, thousands: ".", decimal: ","},
	"JPY": {decimals: 0, thousands: ",", decimal: "."},
	"EUR": {decimals: 2, thousands: ".", decimal: ","},
	"RON": {decimals: 2, thousands: ".", decimal: ","},
	"GBP": {decimals: 2, thousands: ",", decimal: "."},
	"USD": {decimals: 2, thousands: ",", decimal: "."},
}

// Format renders an amount with the currency code prefix and the separators
// customary for that currency, e.g. "EUR 1.234,50" or "GBP 1,234.50".
func Format(amount float64, code string) string {
	code = strings.ToUpper(code)
	st, ok := styles[code]
	if !ok {
		st = style{decimals: 2, thousands: ",", decimal: "."}
	}

	scale := math.Pow(10, float64(st.decimals))
	rounded := math.Round(amount*scale) / scale

	negative := rounded < 0
	if negative {
		rounded = -rounded
	}

	whole := math.Floor(rounded)
	intStr := fmt.Sprintf("%.0f", whole)
	formatted := addThousandsSeparator(intStr, st.thousands)

	if st.decimals > 0 {
		frac := math.Round((rounded - whole) * scale)
		formatted += st.decimal + fmt.Sprintf("%0*d", st.decimals, int(frac))
	}

	result := code + " " + formatted
	if negative {
		result = "-" + result
	}

	return result
}

func addThousandsSeparator(s string, sep string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	numSeps := (n - 1) / 3
	result := make([]byte, n+numSeps)

	j := len(result) - 1
	for i := n - 1; i >= 0; i-- {
		result[j] = s[i]
		j--

		pos := n - i
		if pos%3 == 0 && i > 0 {
			result[j] = sep[0]
			j--
		}
	}

	return string(result)
}
