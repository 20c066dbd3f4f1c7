package valueobjects

import (
	"fmt"
	"strings"
)

// Money is an amount in minor units (cents) of an ISO 4217 currency.
type Money struct {
	amountMinor int64
	currency    string
}

func NewMoney(amountMinor int64, currency string) Money {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return Money{amountMinor: amountMinor, currency: currency}
}

func (m Money) AmountMinor() int64 {
	return m.amountMinor
}

func (m Money) Currency() string {
	return m.currency
}

func (m Money) IsPositive() bool {
	return m.amountMinor > 0
}

func (m Money) Equals(other Money) bool {
	return m.amountMinor == other.amountMinor && m.currency == other.currency
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.amountMinor/100, m.amountMinor%100, m.currency)
}
