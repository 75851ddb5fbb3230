package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/localstore"
	"github.com/pkordes/tripmate/internal/service"
)

type ExportCmd struct {
	Format string `short:"f" help:"json, csv (spends ledger) or pdf." default:"json" enum:"json,csv,pdf"`
	Out    string `short:"o" help:"Write to this file instead of stdout." type:"path"`
}

func (c *ExportCmd) Run(ctx *Context) error {
	s, err := ctx.State()
	if err != nil {
		return err
	}

	// The local copy is the trip as this device last saw it; a device that
	// never edited has nothing stored yet and renders from memory instead.
	if c.Format == service.FormatJSON && c.Out == "" {
		err := ctx.Local.Export(ctx.Ctx, ctx.Out)
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	f, err := service.Render(domain.Document{Key: ctx.Key.Address(), State: s, UpdatedAt: ctx.Now()}, c.Format)
	if err != nil {
		return err
	}
	if c.Out == "" {
		_, err := ctx.Out.Write(f.Body)
		return err
	}
	if err := os.WriteFile(c.Out, f.Body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	ctx.printf("Exported %s to %s\n", c.Format, c.Out)
	return nil
}

type ImportCmd struct {
	File string `arg:"" help:"JSON trip document to import." type:"existingfile"`
}

// Run replaces the whole trip with the file's contents on every device.
func (c *ImportCmd) Run(ctx *Context) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	imported, err := localstore.Import(f)
	if err != nil {
		return err
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		*s = imported
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Imported %s: %d spends, %d plan items\n", c.File, len(imported.Spends), len(imported.Plan))
	return nil
}

type ResetCmd struct {
	Yes bool `help:"Confirm replacing the trip with the starting data."`
}

func (c *ResetCmd) Run(ctx *Context) error {
	if !c.Yes {
		return errors.New("reset replaces the trip on every device; pass --yes to confirm")
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		*s = domain.Defaults()
		return nil
	}); err != nil {
		return err
	}
	ctx.println("Trip reset to the starting data.")
	return nil
}
