package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRates returns the built-in rates used until live rates are fetched.
// They start as a manual override, so a device only queries the rate source
// after the user switches to live rates.
func DefaultRates(now time.Time) ExchangeRates {
	t := now.UTC()
	return ExchangeRates{
		GBP:            one,
		THB:            decimal.NewFromInt(46),
		QAR:            decimal.RequireFromString("4.6"),
		LastUpdated:    &t,
		ManualOverride: true,
	}
}

// Rate returns units of c per one GBP. Unknown currencies yield 1.
func (r ExchangeRates) Rate(c Currency) decimal.Decimal {
	switch c {
	case THB:
		return r.THB
	case QAR:
		return r.QAR
	default:
		return one
	}
}

// Convert converts amount from one currency to another via GBP.
// A zero rate is treated as 1 rather than dividing by zero.
func Convert(amount decimal.Decimal, from, to Currency, r ExchangeRates) decimal.Decimal {
	if from == to {
		return amount
	}
	fromRate := r.Rate(from)
	if fromRate.IsZero() {
		fromRate = one
	}
	inGBP := amount.Div(fromRate)
	return inGBP.Mul(r.Rate(to))
}

// BudgetSummary totals spends in GBP.
type BudgetSummary struct {
	TotalGBP   decimal.Decimal              `json:"totalGBP"`
	ByArea     map[Area]decimal.Decimal     `json:"byArea"`
	ByCurrency map[Currency]decimal.Decimal `json:"byCurrency"`
	Count      int                          `json:"count"`
}

// Summarize converts every spend to GBP and totals it overall and per area.
// ByCurrency holds the unconverted totals. GBP figures are rounded to pence.
func Summarize(spends []Spend, r ExchangeRates) BudgetSummary {
	sum := BudgetSummary{
		TotalGBP:   decimal.Zero,
		ByArea:     map[Area]decimal.Decimal{},
		ByCurrency: map[Currency]decimal.Decimal{},
		Count:      len(spends),
	}
	for _, sp := range spends {
		gbp := Convert(sp.Amount, sp.Currency, GBP, r)
		sum.TotalGBP = sum.TotalGBP.Add(gbp)
		sum.ByArea[sp.Area] = sum.ByArea[sp.Area].Add(gbp)
		sum.ByCurrency[sp.Currency] = sum.ByCurrency[sp.Currency].Add(sp.Amount)
	}
	sum.TotalGBP = sum.TotalGBP.Round(2)
	for a, v := range sum.ByArea {
		sum.ByArea[a] = v.Round(2)
	}
	return sum
}
