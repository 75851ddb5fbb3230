package cli

import (
	"context"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/reconcile"
)

type SyncCmd struct {
	Quiet bool `short:"q" help:"Do not print remote changes."`
}

// Run stays live on the trip until interrupted, printing a line for every
// change another device makes.
func (c *SyncCmd) Run(ctx *Context) error {
	ctrl, err := ctx.Trip()
	if err != nil {
		return err
	}
	ctx.refreshRates()
	if _, err := ctx.refreshWeather(); err != nil {
		ctx.Logger.Warn("weather refresh incomplete", "error", err)
	}

	if !c.Quiet {
		cancel := ctrl.Observe(func(_ context.Context, s domain.TripState, origin reconcile.Origin) {
			if origin != reconcile.OriginRemote {
				return
			}
			sum := domain.Summarize(s.Spends, s.ExchangeRates)
			ctx.printf("%s  remote update: %d spends (£%s), %d plan items\n",
				ctx.Now().Format("15:04:05"), sum.Count, sum.TotalGBP.StringFixed(2), len(s.Plan))
		})
		defer cancel()
	}

	ctx.printf("Syncing trip %s (%s). Ctrl-C to stop.\n", ctx.Key, ctrl.Phase())
	<-ctx.Ctx.Done()
	ctrl.Flush()
	return nil
}
