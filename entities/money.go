package entities

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Currency string          `json:"currency" db:"currency"`
}

func NewMoney(amount string, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("amount must not be negative: %s", amount)
	}
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("invalid currency %q", currency)
	}

	return Money{Amount: d.Round(2), Currency: strings.ToUpper(currency)}, nil
}

func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: strings.ToUpper(currency)}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}
}

func (m Money) Mul(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// ApplyDiscount takes percent off the amount, rounding half up to the cent.
func (m Money) ApplyDiscount(percent int) Money {
	if percent <= 0 {
		return m
	}
	if percent >= 100 {
		return Zero(m.Currency)
	}

	factor := decimal.NewFromInt(int64(100 - percent)).Div(decimal.NewFromInt(100))

	return Money{Amount: m.Amount.Mul(factor).Round(2), Currency: m.Currency}
}

// MinorUnits returns the amount in cents, the unit Stripe expects.
func (m Money) MinorUnits() int64 {
	return m.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
