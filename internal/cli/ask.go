package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/weather"
)

type AskCmd struct {
	Question []string `arg:"" help:"Question for the concierge."`
	Area     string   `short:"a" help:"Samui or Doha." default:"Samui" enum:"Samui,Doha"`
}

func (c *AskCmd) Run(ctx *Context) error {
	question := strings.TrimSpace(strings.Join(c.Question, " "))
	if question == "" {
		return fmt.Errorf("%w: question is empty", domain.ErrValidation)
	}
	ctrl, err := ctx.Trip()
	if err != nil {
		return err
	}
	snap, ok := ctrl.Weather()
	if !ok {
		if snap, err = ctx.refreshWeather(); err != nil {
			ctx.Logger.Warn("asking without a full forecast", "error", err)
		}
		ok = len(snap.Days) > 0
	}
	var w *weather.Snapshot
	if ok {
		w = &snap
	}

	answer, err := ctx.API.Ask(ctx.Ctx, question, conciergeContext(ctrl.State(), w, domain.Area(c.Area), ctx.Now()))
	if err != nil {
		return err
	}
	ctx.println(answer)
	return nil
}

type conciergeMeta struct {
	Start string      `json:"start"`
	End   string      `json:"end"`
	Area  domain.Area `json:"area"`
}

type conciergeRestaurant struct {
	Name          string           `json:"name"`
	Area          domain.Area      `json:"area"`
	Cuisine       string           `json:"cuisine"`
	PriceTier     domain.PriceTier `json:"priceTier"`
	Tags          []string         `json:"tags"`
	Maps          string           `json:"maps,omitempty"`
	ApproxCostGBP *decimal.Decimal `json:"approxCostGBP,omitempty"`
	Favourite     bool             `json:"favourite,omitempty"`
}

type conciergePlanItem struct {
	Time  string          `json:"time,omitempty"`
	Kind  domain.PlanKind `json:"kind"`
	Title string          `json:"title"`
}

type conciergeBudget struct {
	TotalGBP decimal.Decimal      `json:"totalGBP"`
	Rates    domain.ExchangeRates `json:"rates"`
}

type conciergeWeather struct {
	Area  domain.Area  `json:"area"`
	Today *weather.Day `json:"today"`
}

// tripContext is the compact snapshot sent along with a question.
type tripContext struct {
	Meta        conciergeMeta         `json:"meta"`
	Restaurants []conciergeRestaurant `json:"restaurants"`
	PlanToday   []conciergePlanItem   `json:"planToday"`
	Budget      conciergeBudget       `json:"budget"`
	Weather     *conciergeWeather     `json:"weather,omitempty"`
}

// conciergeContext narrows state to what matters for area today: its
// restaurants, today's plan, the budget total and today's forecast.
func conciergeContext(s domain.TripState, w *weather.Snapshot, area domain.Area, now time.Time) tripContext {
	today := now.Format("2006-01-02")
	out := tripContext{
		Meta: conciergeMeta{
			Start: s.DateRange.Start.Time.Format("2006-01-02"),
			End:   s.DateRange.End.Time.Format("2006-01-02"),
			Area:  area,
		},
		Restaurants: []conciergeRestaurant{},
		PlanToday:   []conciergePlanItem{},
		Budget: conciergeBudget{
			TotalGBP: domain.Summarize(s.Spends, s.ExchangeRates).TotalGBP,
			Rates:    s.ExchangeRates,
		},
	}
	for _, r := range s.Restaurants {
		if r.Area != area {
			continue
		}
		out.Restaurants = append(out.Restaurants, conciergeRestaurant{
			Name: r.Name, Area: r.Area, Cuisine: r.Cuisine, PriceTier: r.PriceTier,
			Tags: r.Tags, Maps: r.MapsURL, ApproxCostGBP: r.ApproxCostGBP, Favourite: r.Favourite,
		})
	}
	for _, p := range s.Plan {
		if p.Date.Time.Format("2006-01-02") == today {
			out.PlanToday = append(out.PlanToday, conciergePlanItem{Time: p.Time, Kind: p.Kind, Title: p.Title})
		}
	}
	if w != nil {
		cw := &conciergeWeather{Area: area}
		if d, ok := w.Today(area, today); ok {
			cw.Today = &d
		}
		out.Weather = cw
	}
	return out
}
