package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/rates"
	"github.com/pkordes/tripmate/internal/weather"
)

type RatesRefreshCmd struct{}

// Run switches the trip to live rates. A failed fetch keeps the cached ones.
func (c *RatesRefreshCmd) Run(ctx *Context) error {
	if _, err := ctx.Trip(); err != nil {
		return err
	}
	live, err := ctx.Rates.Latest(ctx.Ctx)
	if err != nil {
		return fmt.Errorf("rates unavailable, keeping cached rates: %w", err)
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		s.ExchangeRates = live
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("£1 = ฿%s = QR%s (live)\n", live.THB, live.QAR)
	return nil
}

type RatesSetCmd struct {
	THB string `arg:"" help:"Baht per pound."`
	QAR string `arg:"" help:"Riyal per pound."`
}

func (c *RatesSetCmd) Run(ctx *Context) error {
	thb, err1 := decimal.NewFromString(c.THB)
	qar, err2 := decimal.NewFromString(c.QAR)
	if err := errors.Join(err1, err2); err != nil {
		return fmt.Errorf("%w: rates must be numbers", domain.ErrValidation)
	}
	manual, err := rates.Manual(thb, qar, ctx.Now())
	if err != nil {
		return err
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		s.ExchangeRates = manual
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("£1 = ฿%s = QR%s (manual)\n", manual.THB, manual.QAR)
	return nil
}

// refreshRates applies live rates unless the trip pins them. Failures are
// logged and the cached rates stay.
func (c *Context) refreshRates() {
	ctrl, err := c.Trip()
	if err != nil {
		return
	}
	st := ctrl.State()
	changed, err := c.Rates.Refresh(c.Ctx, &st)
	if err != nil {
		c.Logger.Warn("rate refresh failed, keeping cached rates", "error", err)
		return
	}
	if !changed {
		return
	}
	err = ctrl.Update(func(s *domain.TripState) error {
		if !s.ExchangeRates.ManualOverride {
			s.ExchangeRates = st.ExchangeRates
		}
		return nil
	})
	if err != nil {
		c.Logger.Warn("apply live rates", "error", err)
	}
}

// refreshWeather fetches forecasts into the controller's session data.
func (c *Context) refreshWeather() (weather.Snapshot, error) {
	ctrl, err := c.Trip()
	if err != nil {
		return weather.Snapshot{}, err
	}
	snap, err := c.Weather.All(c.Ctx)
	if len(snap.Days) > 0 {
		ctrl.SetWeather(snap)
	}
	return snap, err
}

type WeatherCmd struct {
	Area string `short:"a" help:"Only this area (Samui or Doha)."`
}

func (c *WeatherCmd) Validate() error {
	switch domain.Area(c.Area) {
	case "", domain.AreaSamui, domain.AreaDoha:
		return nil
	}
	return fmt.Errorf("--area must be Samui or Doha")
}

func (c *WeatherCmd) Run(ctx *Context) error {
	snap, err := ctx.refreshWeather()
	if err != nil {
		ctx.Logger.Warn("weather refresh incomplete", "error", err)
		if len(snap.Days) == 0 {
			return err
		}
	}
	for _, loc := range weather.Locations {
		if c.Area != "" && string(loc.Area) != c.Area {
			continue
		}
		days, ok := snap.Days[loc.Area]
		if !ok {
			ctx.printf("%s: unavailable\n", loc.Area)
			continue
		}
		ctx.printf("%s\n", loc.Area)
		for _, d := range days {
			rain := ""
			if d.PrecipProb != nil {
				rain = fmt.Sprintf(" %3.0f%% rain", *d.PrecipProb*100)
			}
			ctx.printf("  %s  %2d-%2d°C  %-13s%s\n", d.Date, d.MinC, d.MaxC, weather.Describe(d.Code), rain)
		}
	}
	return nil
}

type FlightCmd struct {
	Number string `arg:"" help:"Flight number, e.g. QR836."`
	Date   string `short:"d" help:"Flight date (YYYY-MM-DD)."`
}

func (c *FlightCmd) Run(ctx *Context) error {
	st, err := ctx.API.Flight(ctx.Ctx, c.Number, c.Date)
	if err != nil {
		return err
	}
	ctx.printf("%s %s: %s\n", deref(st.Flight.IATA), deref(st.Flight.Airline), deref(st.Flight.Status))
	printLeg := func(name string, airport, iata, sched, est, gate, term *string) {
		ctx.printf("  %-9s %s (%s)  scheduled %s", name, deref(airport), deref(iata), deref(sched))
		if est != nil {
			ctx.printf("  estimated %s", *est)
		}
		if term != nil || gate != nil {
			ctx.printf("  terminal %s gate %s", deref(term), deref(gate))
		}
		ctx.println()
	}
	d, a := st.Departure, st.Arrival
	printLeg("departs", d.Airport, d.IATA, d.Scheduled, d.Estimated, d.Gate, d.Terminal)
	printLeg("arrives", a.Airport, a.IATA, a.Scheduled, a.Estimated, a.Gate, a.Terminal)
	return nil
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

type NewsCmd struct {
	Query    []string `arg:"" optional:"" help:"Search terms. Defaults to trip destinations."`
	Page     int      `help:"Page number." default:"1"`
	PageSize int      `help:"Headlines per page." default:"10"`
}

func (c *NewsCmd) Run(ctx *Context) error {
	items, err := ctx.API.News(ctx.Ctx, strings.Join(c.Query, " "), domain.NewPageParams(&c.Page, &c.PageSize))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		ctx.println("No headlines.")
		return nil
	}
	for _, it := range items {
		ctx.printf("%s  %s\n  %s (%s)\n", it.PublishedAt, it.Title, it.URL, it.Source)
	}
	return nil
}
