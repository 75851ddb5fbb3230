// Package main is the tripmate device client: a local-first copy of the trip
// kept in step with every other device through the TripMate server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/pkordes/tripmate/internal/cli"
	"github.com/pkordes/tripmate/internal/config"
)

var CLI struct {
	Globals cli.Globals `embed:""`
	Version kong.VersionFlag

	Sync  cli.SyncCmd  `cmd:"" help:"Stay live on the trip and print changes from other devices."`
	Show  cli.ShowCmd  `cmd:"" help:"Summarise the trip." default:"1"`
	Spend struct {
		Add  cli.SpendAddCmd  `cmd:"" help:"Record a spend."`
		Rm   cli.SpendRmCmd   `cmd:"" help:"Delete a spend."`
		List cli.SpendListCmd `cmd:"" help:"List spends." default:"1"`
	} `cmd:"" help:"Manage spends."`
	Check struct {
		Add    cli.CheckAddCmd    `cmd:"" help:"Add a checklist item."`
		Toggle cli.CheckToggleCmd `cmd:"" help:"Tick or untick a checklist item."`
	} `cmd:"" help:"Manage the food and activity checklist."`
	Plan struct {
		Add cli.PlanAddCmd `cmd:"" help:"Add an itinerary entry."`
		Rm  cli.PlanRmCmd  `cmd:"" help:"Delete an itinerary entry."`
	} `cmd:"" help:"Manage the itinerary."`
	Restaurant struct {
		Add  cli.RestaurantAddCmd  `cmd:"" help:"Add a restaurant."`
		List cli.RestaurantListCmd `cmd:"" help:"List restaurants, optionally filtered." default:"1"`
		Fav  cli.RestaurantFavCmd  `cmd:"" help:"Toggle a restaurant as favourite."`
	} `cmd:"" help:"Manage restaurants."`
	Steps struct {
		Set cli.StepsSetCmd `cmd:"" help:"Record a day's step count."`
	} `cmd:"" help:"Track daily steps."`
	Rates struct {
		Refresh cli.RatesRefreshCmd `cmd:"" help:"Switch to live exchange rates."`
		Set     cli.RatesSetCmd     `cmd:"" help:"Pin exchange rates manually."`
	} `cmd:"" help:"Manage exchange rates."`
	Budget    cli.BudgetCmd    `cmd:"" help:"Show spending totals in GBP."`
	Weather   cli.WeatherCmd   `cmd:"" help:"Show the forecast for Samui and Doha."`
	Countdown cli.CountdownCmd `cmd:"" help:"Show trip progress and the next event."`
	Flight    cli.FlightCmd    `cmd:"" help:"Look up a flight's status."`
	News      cli.NewsCmd      `cmd:"" help:"Show destination headlines."`
	Ask       cli.AskCmd       `cmd:"" help:"Ask the trip concierge."`
	Share     cli.ShareCmd     `cmd:"" help:"Print a link and QR code to join this trip."`
	Export    cli.ExportCmd    `cmd:"" help:"Export the trip."`
	Import    cli.ImportCmd    `cmd:"" help:"Replace the trip with a JSON document."`
	Reset     cli.ResetCmd     `cmd:"" help:"Replace the trip with the starting data."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("tripmate"),
		kong.Description("Shared trip planner for Samui and Doha"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     "v1.0.0",
			"config_path": config.DefaultClientConfigPath,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, err := cli.Open(ctx, CLI.Globals, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(appCtx)
	if cerr := appCtx.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
