package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultLabelSize is the PNG edge length in pixels used when none is given.
const DefaultLabelSize = 256

// Label renders the signed payload of bookID as a PNG QR code.
func (c *Codec) Label(bookID string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultLabelSize
	}
	png, err := qrcode.Encode(c.Encode(bookID), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding qr label for %s: %w", bookID, err)
	}
	return png, nil
}
