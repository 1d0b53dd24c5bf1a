// Package qrimage renders the scannable image printed on a pet tag.
package qrimage

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	MinSize     = 128
	MaxSize     = 1024
	DefaultSize = 256
)

type Renderer struct {
	Origin string
}

func New(origin string) Renderer {
	return Renderer{Origin: strings.TrimRight(origin, "/")}
}

// URL is the address the tag encodes.
func (r Renderer) URL(code string) string {
	return r.Origin + "/qr/" + url.PathEscape(code)
}

// ClampSize maps any requested size into the supported range. Zero means
// the default.
func ClampSize(size int) int {
	switch {
	case size == 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	}
	return size
}

// PNG encodes the tag URL at medium error correction. The output depends
// only on the origin, the code and the size.
func (r Renderer) PNG(code string, size int) ([]byte, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("qrimage: empty code")
	}
	png, err := qrcode.Encode(r.URL(code), qrcode.Medium, ClampSize(size))
	if err != nil {
		return nil, fmt.Errorf("qrimage: encode %s: %w", code, err)
	}
	return png, nil
}
