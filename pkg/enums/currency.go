package enums

// Currency is the ISO currency code for monetary amounts.
// The platform is single-currency today.
type Currency string

const CurrencyUSD Currency = "USD"

// IsValid reports whether the value matches a supported currency.
func (c Currency) IsValid() bool {
	return c == CurrencyUSD
}
