package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pkordes/tripmate/internal/domain"
)

type ShowCmd struct {
	JSON bool `help:"Print the whole trip document as JSON."`
}

func (c *ShowCmd) Run(ctx *Context) error {
	ctrl, err := ctx.Trip()
	if err != nil {
		return err
	}
	s := ctrl.State()
	if c.JSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	now := ctx.Now()
	ctx.printf("Trip %s (%s)\n", ctx.Key, ctrl.Phase())
	ctx.printf("%s to %s, %d%% done\n",
		s.DateRange.Start.Time.Format("Mon 2 Jan 2006"), s.DateRange.End.Time.Format("Mon 2 Jan 2006"),
		domain.Progress(s.DateRange, now))

	sum := domain.Summarize(s.Spends, s.ExchangeRates)
	ctx.printf("Spent £%s across %d spends\n", sum.TotalGBP.StringFixed(2), sum.Count)

	done := 0
	for _, item := range s.Checklist {
		if item.Done {
			done++
		}
	}
	ctx.printf("Checklist %d/%d\n", done, len(s.Checklist))

	today := ctx.today()
	ctx.println()
	ctx.println("Today:")
	printed := false
	for _, p := range s.Plan {
		if p.Date.Time.Format("2006-01-02") != today {
			continue
		}
		printed = true
		when := p.Time
		if when == "" {
			when = "all day"
		}
		ctx.printf("  %-8s %-8s %s\n", when, p.Kind, p.Title)
	}
	if !printed {
		ctx.println("  nothing planned")
	}
	return nil
}

type BudgetCmd struct {
	Target string `help:"Budget target in GBP for this session."`
}

func (c *BudgetCmd) Run(ctx *Context) error {
	ctrl, err := ctx.Trip()
	if err != nil {
		return err
	}
	if c.Target != "" {
		target, err := decimal.NewFromString(c.Target)
		if err != nil || target.IsNegative() {
			return fmt.Errorf("%w: target %q must be a positive amount", domain.ErrValidation, c.Target)
		}
		ctrl.SetBudgetTarget(target)
	}

	s := ctrl.State()
	sum := domain.Summarize(s.Spends, s.ExchangeRates)
	r := s.ExchangeRates

	source := "live"
	if r.ManualOverride {
		source = "manual"
	}
	ctx.printf("Rates (%s): £1 = ฿%s = QR%s\n", source, r.THB.String(), r.QAR.String())
	ctx.printf("Total: £%s\n", sum.TotalGBP.StringFixed(2))

	for _, area := range []domain.Area{domain.AreaSamui, domain.AreaDoha} {
		ctx.printf("  %-6s £%s\n", area, sum.ByArea[area].StringFixed(2))
	}
	currencies := make([]string, 0, len(sum.ByCurrency))
	for cur := range sum.ByCurrency {
		currencies = append(currencies, string(cur))
	}
	sort.Strings(currencies)
	for _, cur := range currencies {
		ctx.printf("  in %s: %s\n", cur, sum.ByCurrency[domain.Currency(cur)].String())
	}

	if target, ok := ctrl.BudgetTarget(); ok {
		left := target.Sub(sum.TotalGBP)
		ctx.printf("Target £%s, remaining £%s\n", target.StringFixed(2), left.StringFixed(2))
	}
	return nil
}

type CountdownCmd struct{}

func (c *CountdownCmd) Run(ctx *Context) error {
	s, err := ctx.State()
	if err != nil {
		return err
	}
	now := ctx.Now()
	ctx.printf("Trip progress: %d%%\n", domain.Progress(s.DateRange, now))

	next, ok := domain.NextEvent(s.SpecialEvents, now)
	if !ok {
		ctx.println("No upcoming events.")
		return nil
	}
	cd := domain.CountdownTo(next.At, now)
	parts := []string{}
	if cd.Days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", cd.Days))
	}
	parts = append(parts, fmt.Sprintf("%dh", cd.Hours), fmt.Sprintf("%dm", cd.Minutes))
	ctx.printf("%s in %s (%s)\n", next.Label, strings.Join(parts, " "), next.At.Format("Mon 2 Jan 15:04 MST"))
	return nil
}
