package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Normalize restores the invariants that can be repaired rather than
// rejected: the base rate is reset to 1, nil collections become empty and the
// plan is ordered by date then time.
func Normalize(s *TripState) {
	s.ExchangeRates.GBP = one
	if s.Spends == nil {
		s.Spends = []Spend{}
	}
	if s.Restaurants == nil {
		s.Restaurants = []Restaurant{}
	}
	if s.Checklist == nil {
		s.Checklist = []ChecklistItem{}
	}
	if s.Plan == nil {
		s.Plan = []PlanItem{}
	}
	if s.SpecialEvents == nil {
		s.SpecialEvents = []SpecialEvent{}
	}
	for i := range s.Restaurants {
		if s.Restaurants[i].Tags == nil {
			s.Restaurants[i].Tags = []string{}
		}
	}
	SortPlan(s.Plan)
}

// SortPlan orders plan items by date, then time of day. Items without a time
// come first within their day; ties keep their existing order.
func SortPlan(plan []PlanItem) {
	sort.SliceStable(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if !a.Date.Time.Equal(b.Date.Time) {
			return a.Date.Time.Before(b.Date.Time)
		}
		return a.Time < b.Time
	})
}

// Validate checks every invariant of a trip document and returns the first
// violation wrapped in ErrValidation.
func Validate(s TripState) error {
	if err := validateDateRange(s.DateRange); err != nil {
		return err
	}
	if err := validateRates(s.ExchangeRates); err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(s.Spends))
	for _, sp := range s.Spends {
		if err := uniqueID("spends", sp.ID, ids); err != nil {
			return err
		}
		if sp.Date.Time.IsZero() {
			return invalid("spend %s: date is required", sp.ID)
		}
		if !validArea(sp.Area) {
			return invalid("spend %s: unknown area %q", sp.ID, sp.Area)
		}
		if !validCurrency(sp.Currency) {
			return invalid("spend %s: unknown currency %q", sp.ID, sp.Currency)
		}
		if sp.Amount.IsNegative() {
			return invalid("spend %s: amount must not be negative", sp.ID)
		}
	}

	ids = make(map[string]struct{}, len(s.Restaurants))
	for _, r := range s.Restaurants {
		if err := uniqueID("restaurants", r.ID, ids); err != nil {
			return err
		}
		if !validArea(r.Area) {
			return invalid("restaurant %s: unknown area %q", r.ID, r.Area)
		}
		switch r.PriceTier {
		case PriceLow, PriceMid, PriceHigh:
		default:
			return invalid("restaurant %s: unknown price tier %q", r.ID, r.PriceTier)
		}
		if r.ApproxCostGBP != nil && r.ApproxCostGBP.IsNegative() {
			return invalid("restaurant %s: approximate cost must not be negative", r.ID)
		}
	}

	ids = make(map[string]struct{}, len(s.Checklist))
	for _, c := range s.Checklist {
		if err := uniqueID("checklist", c.ID, ids); err != nil {
			return err
		}
		if !validArea(c.Area) {
			return invalid("checklist item %s: unknown area %q", c.ID, c.Area)
		}
		if c.Category != CategoryFood && c.Category != CategoryActivity {
			return invalid("checklist item %s: unknown category %q", c.ID, c.Category)
		}
	}

	ids = make(map[string]struct{}, len(s.Plan))
	for _, p := range s.Plan {
		if err := uniqueID("plan", p.ID, ids); err != nil {
			return err
		}
		if p.Date.Time.IsZero() {
			return invalid("plan item %s: date is required", p.ID)
		}
		if !validArea(p.Area) {
			return invalid("plan item %s: unknown area %q", p.ID, p.Area)
		}
		switch p.Kind {
		case KindActivity, KindMeal, KindNote:
		default:
			return invalid("plan item %s: unknown kind %q", p.ID, p.Kind)
		}
		if p.Time != "" {
			if _, err := time.Parse("15:04", p.Time); err != nil {
				return invalid("plan item %s: time %q is not HH:MM", p.ID, p.Time)
			}
		}
	}

	ids = make(map[string]struct{}, len(s.SpecialEvents))
	for _, e := range s.SpecialEvents {
		if err := uniqueID("specialEvents", e.ID, ids); err != nil {
			return err
		}
	}

	for day, n := range s.Steps {
		if _, err := time.Parse(dateLayout, day); err != nil {
			return invalid("steps: %q is not a calendar date", day)
		}
		if n < 0 {
			return invalid("steps: count for %s must not be negative", day)
		}
	}
	return nil
}

// Equal reports whether a and b are the same document. Comparison is on the
// wire form, so a nil collection equals an empty one.
func Equal(a, b TripState) bool {
	ab, err := canonical(a)
	if err != nil {
		return false
	}
	bb, err := canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func canonical(s TripState) ([]byte, error) {
	c := s.Clone()
	if c.Spends == nil {
		c.Spends = []Spend{}
	}
	if c.Restaurants == nil {
		c.Restaurants = []Restaurant{}
	}
	if c.Checklist == nil {
		c.Checklist = []ChecklistItem{}
	}
	if c.Plan == nil {
		c.Plan = []PlanItem{}
	}
	if c.SpecialEvents == nil {
		c.SpecialEvents = []SpecialEvent{}
	}
	return json.Marshal(c)
}

const dateLayout = "2006-01-02"

func validateDateRange(r DateRange) error {
	if r.Start.Time.IsZero() || r.End.Time.IsZero() {
		return invalid("date range start and end are required")
	}
	if r.End.Time.Before(r.Start.Time) {
		return invalid("date range end must not be before start")
	}
	return nil
}

func validateRates(r ExchangeRates) error {
	if !r.GBP.Equal(one) {
		return invalid("exchange rate for %s must be 1", BaseCurrency)
	}
	if !r.THB.IsPositive() || !r.QAR.IsPositive() {
		return invalid("exchange rates must be positive")
	}
	return nil
}

func uniqueID(collection, id string, seen map[string]struct{}) error {
	if id == "" {
		return invalid("%s: id is required", collection)
	}
	if _, dup := seen[id]; dup {
		return invalid("%s: duplicate id %q", collection, id)
	}
	seen[id] = struct{}{}
	return nil
}

func validArea(a Area) bool {
	return a == AreaSamui || a == AreaDoha
}

func validCurrency(c Currency) bool {
	return c == GBP || c == THB || c == QAR
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
