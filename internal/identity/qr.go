package identity

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRText renders link as a terminal-printable QR code.
func QRText(link string) (string, error) {
	q, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("identity.QRText: %w", err)
	}
	return q.ToSmallString(false), nil
}

// QRPNG encodes link as a PNG of size pixels square.
func QRPNG(link string, size int) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("identity.QRPNG: %w", err)
	}
	return png, nil
}
