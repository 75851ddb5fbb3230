package cli

import (
	"fmt"
	"os"

	"github.com/pkordes/tripmate/internal/identity"
)

type ShareCmd struct {
	PNG  string `help:"Also write the QR code as a PNG to this path." type:"path"`
	Size int    `help:"PNG size in pixels." default:"256"`
}

func (c *ShareCmd) Run(ctx *Context) error {
	link := identity.ShareLink(ctx.Config.ServerURL, ctx.Key)
	qr, err := identity.QRText(link)
	if err != nil {
		return err
	}
	ctx.printf("Open this link on another device, or run `tripmate --trip %s sync`:\n%s\n\n", ctx.Key.TripID, link)
	fmt.Fprint(ctx.Out, qr)

	if c.PNG == "" {
		return nil
	}
	png, err := identity.QRPNG(link, c.Size)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.PNG, png, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.PNG, err)
	}
	ctx.printf("QR code written to %s\n", c.PNG)
	return nil
}
