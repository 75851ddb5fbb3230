// Package domain contains the core data types for TripMate.
// TripState is the single document every device of a trip holds in full and
// synchronises as a whole. This package performs no I/O and is imported by
// every other internal package.
package domain

import (
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
)

func init() {
	// Documents are shared with non-Go clients that expect amounts and rates
	// as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Area is one of the two fixed trip locations.
type Area string

const (
	AreaSamui Area = "Samui"
	AreaDoha  Area = "Doha"
)

// Currency is one of the three currencies spends can be recorded in.
// GBP is the base currency.
type Currency string

const (
	GBP Currency = "GBP"
	THB Currency = "THB"
	QAR Currency = "QAR"
)

// BaseCurrency is the currency every exchange rate is expressed against.
const BaseCurrency = GBP

// PriceTier is an ordinal restaurant price band.
type PriceTier string

const (
	PriceLow  PriceTier = "£"
	PriceMid  PriceTier = "££"
	PriceHigh PriceTier = "£££"
)

// ChecklistCategory groups checklist entries.
type ChecklistCategory string

const (
	CategoryFood     ChecklistCategory = "Food"
	CategoryActivity ChecklistCategory = "Activity"
)

// PlanKind classifies an itinerary entry.
type PlanKind string

const (
	KindActivity PlanKind = "Activity"
	KindMeal     PlanKind = "Meal"
	KindNote     PlanKind = "Note"
)

// DateRange is the trip's first and last calendar day, inclusive.
type DateRange struct {
	Start openapi_types.Date `json:"start"`
	End   openapi_types.Date `json:"end"`
}

// Spend is one recorded expense.
type Spend struct {
	ID       string             `json:"id"`
	Date     openapi_types.Date `json:"date"`
	Area     Area               `json:"area"`
	Label    string             `json:"label"`
	Currency Currency           `json:"currency"`
	Amount   decimal.Decimal    `json:"amount"`
	Notes    string             `json:"notes,omitempty"`
}

// ExchangeRates holds units of each currency per one GBP.
// GBP is always exactly 1; Normalize enforces it.
type ExchangeRates struct {
	GBP            decimal.Decimal `json:"GBP"`
	THB            decimal.Decimal `json:"THB"`
	QAR            decimal.Decimal `json:"QAR"`
	LastUpdated    *time.Time      `json:"lastUpdated,omitempty"`
	ManualOverride bool            `json:"manualOverride"`
}

// Restaurant is an entry on the dining list.
type Restaurant struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Area          Area             `json:"area"`
	Cuisine       string           `json:"cuisine"`
	PriceTier     PriceTier        `json:"priceTier"`
	Tags          []string         `json:"tags"`
	MapsURL       string           `json:"mapsUrl"`
	ApproxCostGBP *decimal.Decimal `json:"approxCostGBP,omitempty"`
	Proximity     string           `json:"proximity,omitempty"`
	Favourite     bool             `json:"favourite"`
}

// ChecklistItem is a food or activity the travellers want to tick off.
type ChecklistItem struct {
	ID       string            `json:"id"`
	Area     Area              `json:"area"`
	Category ChecklistCategory `json:"category"`
	Label    string            `json:"label"`
	Note     string            `json:"note,omitempty"`
	Done     bool              `json:"done"`
}

// PlanItem is one itinerary entry. Time is "HH:MM" or empty for all-day items.
type PlanItem struct {
	ID    string             `json:"id"`
	Date  openapi_types.Date `json:"date"`
	Area  Area               `json:"area"`
	Time  string             `json:"time,omitempty"`
	Kind  PlanKind           `json:"kind"`
	Title string             `json:"title"`
	Notes string             `json:"notes,omitempty"`
}

// SpecialEvent is a countdown anchor such as a flight departure.
type SpecialEvent struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

// TripState is the full synchronised document.
// Weather and budget targets are deliberately absent: they are refreshed per
// session and never travel through sync.
type TripState struct {
	DateRange     DateRange       `json:"dateRange"`
	Spends        []Spend         `json:"spends"`
	ExchangeRates ExchangeRates   `json:"exchangeRates"`
	Restaurants   []Restaurant    `json:"restaurants"`
	Checklist     []ChecklistItem `json:"checklist"`
	Plan          []PlanItem      `json:"plan"`
	SpecialEvents []SpecialEvent  `json:"specialEvents"`
	Steps         map[string]int  `json:"steps,omitempty"`
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of s that shares no slices, maps or pointers with it.
func (s TripState) Clone() TripState {
	out := s

	out.Spends = append([]Spend(nil), s.Spends...)
	out.Plan = append([]PlanItem(nil), s.Plan...)
	out.Checklist = append([]ChecklistItem(nil), s.Checklist...)
	out.SpecialEvents = append([]SpecialEvent(nil), s.SpecialEvents...)

	if s.ExchangeRates.LastUpdated != nil {
		t := *s.ExchangeRates.LastUpdated
		out.ExchangeRates.LastUpdated = &t
	}

	out.Restaurants = make([]Restaurant, len(s.Restaurants))
	for i, r := range s.Restaurants {
		r.Tags = append([]string(nil), r.Tags...)
		if r.ApproxCostGBP != nil {
			c := *r.ApproxCostGBP
			r.ApproxCostGBP = &c
		}
		out.Restaurants[i] = r
	}

	if s.Steps != nil {
		out.Steps = make(map[string]int, len(s.Steps))
		for k, v := range s.Steps {
			out.Steps[k] = v
		}
	}
	return out
}

// FindSpend returns the index of the spend with id, or -1.
func (s TripState) FindSpend(id string) int {
	for i, sp := range s.Spends {
		if sp.ID == id {
			return i
		}
	}
	return -1
}

// FindChecklistItem returns the index of the checklist item with id, or -1.
func (s TripState) FindChecklistItem(id string) int {
	for i, c := range s.Checklist {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// FindPlanItem returns the index of the plan item with id, or -1.
func (s TripState) FindPlanItem(id string) int {
	for i, p := range s.Plan {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// FindRestaurant returns the index of the restaurant with id, or -1.
func (s TripState) FindRestaurant(id string) int {
	for i, r := range s.Restaurants {
		if r.ID == id {
			return i
		}
	}
	return -1
}
