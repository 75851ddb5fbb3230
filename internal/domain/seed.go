package domain

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
)

// Defaults returns the seed document a device starts from when it has no
// local copy and the remote store has none either. "Reset" also returns to it.
// Seed ids are fixed so two fresh devices seed identical documents.
func Defaults() TripState {
	s := TripState{
		DateRange: DateRange{
			Start: date(2025, time.September, 16),
			End:   date(2025, time.September, 29),
		},
		Spends:        []Spend{},
		ExchangeRates: DefaultRates(time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)),
		Restaurants:   seedRestaurants(),
		Checklist:     seedChecklist(),
		Plan:          seedPlan(),
		SpecialEvents: []SpecialEvent{
			{
				ID:    "flight-out",
				Label: "Flight to Samui",
				At:    time.Date(2025, time.September, 16, 8, 25, 0, 0, time.FixedZone("BST", 60*60)),
			},
			{
				ID:    "flight-doha",
				Label: "Flight to Doha",
				At:    time.Date(2025, time.September, 24, 22, 45, 0, 0, time.FixedZone("ICT", 7*60*60)),
			},
		},
		Steps: map[string]int{},
	}
	Normalize(&s)
	return s
}

func date(y int, m time.Month, d int) openapi_types.Date {
	return openapi_types.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func gbp(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func seedRestaurants() []Restaurant {
	return []Restaurant{
		{
			ID: "r-samui-1", Name: "Jahn", Area: AreaSamui, Cuisine: "Thai fine dining",
			PriceTier: PriceHigh, Tags: []string{"sunset", "date night"},
			MapsURL:       "https://maps.google.com/?q=Jahn+Conrad+Koh+Samui",
			ApproxCostGBP: gbp(90), Proximity: "Taling Ngam",
		},
		{
			ID: "r-samui-2", Name: "Krua Bophut", Area: AreaSamui, Cuisine: "Thai",
			PriceTier: PriceMid, Tags: []string{"seafood", "beachfront"},
			MapsURL:       "https://maps.google.com/?q=Krua+Bophut",
			ApproxCostGBP: gbp(35), Proximity: "Fisherman's Village",
		},
		{
			ID: "r-samui-3", Name: "Hemingway's on the Beach", Area: AreaSamui, Cuisine: "Thai",
			PriceTier: PriceLow, Tags: []string{"cooking class", "beachfront"},
			MapsURL:       "https://maps.google.com/?q=Hemingways+on+the+Beach+Samui",
			ApproxCostGBP: gbp(20), Proximity: "Lamai",
		},
		{
			ID: "r-doha-1", Name: "Parisa Souq Waqif", Area: AreaDoha, Cuisine: "Persian",
			PriceTier: PriceMid, Tags: []string{"souq", "ornate"},
			MapsURL:       "https://maps.google.com/?q=Parisa+Souq+Waqif",
			ApproxCostGBP: gbp(40), Proximity: "Souq Waqif",
		},
		{
			ID: "r-doha-2", Name: "Al Mourjan", Area: AreaDoha, Cuisine: "Lebanese",
			PriceTier: PriceHigh, Tags: []string{"corniche", "views"},
			MapsURL:       "https://maps.google.com/?q=Al+Mourjan+Doha",
			ApproxCostGBP: gbp(60), Proximity: "Corniche",
		},
	}
}

func seedChecklist() []ChecklistItem {
	return []ChecklistItem{
		{ID: "c-samui-1", Area: AreaSamui, Category: CategoryFood, Label: "Massaman curry"},
		{ID: "c-samui-2", Area: AreaSamui, Category: CategoryFood, Label: "Mango sticky rice"},
		{ID: "c-samui-3", Area: AreaSamui, Category: CategoryActivity, Label: "Ang Thong Marine Park boat trip"},
		{ID: "c-samui-4", Area: AreaSamui, Category: CategoryActivity, Label: "Big Buddha at sunset"},
		{ID: "c-doha-1", Area: AreaDoha, Category: CategoryFood, Label: "Machboos"},
		{ID: "c-doha-2", Area: AreaDoha, Category: CategoryActivity, Label: "Museum of Islamic Art"},
		{ID: "c-doha-3", Area: AreaDoha, Category: CategoryActivity, Label: "Dhow cruise", Note: "Evening departures from the Corniche"},
	}
}

func seedPlan() []PlanItem {
	return []PlanItem{
		{ID: "p-1", Date: date(2025, time.September, 16), Area: AreaSamui, Kind: KindNote, Title: "Arrive, check in, pool"},
		{ID: "p-2", Date: date(2025, time.September, 17), Area: AreaSamui, Time: "19:30", Kind: KindMeal, Title: "Dinner at Krua Bophut"},
		{ID: "p-3", Date: date(2025, time.September, 19), Area: AreaSamui, Time: "08:00", Kind: KindActivity, Title: "Ang Thong boat trip", Notes: "Pickup from hotel lobby"},
		{ID: "p-4", Date: date(2025, time.September, 25), Area: AreaDoha, Time: "10:00", Kind: KindActivity, Title: "Museum of Islamic Art"},
		{ID: "p-5", Date: date(2025, time.September, 25), Area: AreaDoha, Time: "20:00", Kind: KindMeal, Title: "Parisa Souq Waqif"},
	}
}
