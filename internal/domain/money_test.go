package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pkordes/tripmate/internal/domain"
)

func TestConvert(t *testing.T) {
	rates := domain.DefaultRates(time.Now())

	tests := []struct {
		name     string
		amount   string
		from, to domain.Currency
		want     string
	}{
		{"same currency", "12.34", domain.GBP, domain.GBP, "12.34"},
		{"baht to pounds", "460", domain.THB, domain.GBP, "10"},
		{"pounds to riyal", "10", domain.GBP, domain.QAR, "46"},
		{"riyal to baht", "46", domain.QAR, domain.THB, "460"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.Convert(decimal.RequireFromString(tc.amount), tc.from, tc.to, rates)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestConvert_ZeroRateTreatedAsOne(t *testing.T) {
	rates := domain.ExchangeRates{GBP: decimal.NewFromInt(1)}

	got := domain.Convert(decimal.NewFromInt(5), domain.THB, domain.GBP, rates)

	assert.True(t, got.Equal(decimal.NewFromInt(5)))
}

func TestSummarize(t *testing.T) {
	rates := domain.DefaultRates(time.Now())
	spends := []domain.Spend{
		{ID: "1", Area: domain.AreaSamui, Currency: domain.THB, Amount: decimal.NewFromInt(460)},
		{ID: "2", Area: domain.AreaSamui, Currency: domain.GBP, Amount: decimal.RequireFromString("2.50")},
		{ID: "3", Area: domain.AreaDoha, Currency: domain.QAR, Amount: decimal.NewFromInt(23)},
	}

	sum := domain.Summarize(spends, rates)

	assert.Equal(t, 3, sum.Count)
	assert.True(t, sum.TotalGBP.Equal(decimal.RequireFromString("17.5")), "total %s", sum.TotalGBP)
	assert.True(t, sum.ByArea[domain.AreaSamui].Equal(decimal.RequireFromString("12.5")))
	assert.True(t, sum.ByArea[domain.AreaDoha].Equal(decimal.NewFromInt(5)))
	assert.True(t, sum.ByCurrency[domain.THB].Equal(decimal.NewFromInt(460)))
}

func TestSummarize_Empty(t *testing.T) {
	sum := domain.Summarize(nil, domain.DefaultRates(time.Now()))

	assert.Equal(t, 0, sum.Count)
	assert.True(t, sum.TotalGBP.IsZero())
}
