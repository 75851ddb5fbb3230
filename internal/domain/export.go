package domain

import "github.com/shopspring/decimal"

// LedgerRow is one spend in the export ledger, with its GBP equivalent at
// the document's current rates. Dates are "2006-01-02".
type LedgerRow struct {
	Date      string
	Area      Area
	Label     string
	Currency  Currency
	Amount    decimal.Decimal
	AmountGBP decimal.Decimal
	Notes     string
}

// Ledger flattens the spends of s into rows ordered as recorded.
func Ledger(s TripState) []LedgerRow {
	rows := make([]LedgerRow, 0, len(s.Spends))
	for _, sp := range s.Spends {
		rows = append(rows, LedgerRow{
			Date:      sp.Date.Time.Format(dateLayout),
			Area:      sp.Area,
			Label:     sp.Label,
			Currency:  sp.Currency,
			Amount:    sp.Amount,
			AmountGBP: Convert(sp.Amount, sp.Currency, GBP, s.ExchangeRates).Round(2),
			Notes:     sp.Notes,
		})
	}
	return rows
}
