package qr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultWidth  = 256
	DefaultMargin = 4
)

// Options controls how a payload is rendered
type Options struct {
	Width      int    // image side in pixels
	Margin     int    // quiet zone in modules
	Foreground string // "#rrggbb"
	Background string // "#rrggbb"
	Level      string // "L" | "M" | "Q" | "H"
}

// DefaultOptions returns black on white, 256px, 4 module margin
func DefaultOptions() Options {
	return Options{
		Width:      DefaultWidth,
		Margin:     DefaultMargin,
		Foreground: "#000000",
		Background: "#ffffff",
		Level:      "M",
	}
}

// Validate reports option values that can never render
func (o Options) Validate() error {
	if o.Width <= 0 {
		return fmt.Errorf("qr width must be > 0, got %d", o.Width)
	}
	if o.Margin < 0 {
		return fmt.Errorf("qr margin must be >= 0, got %d", o.Margin)
	}
	if _, err := ParseHexColor(o.Foreground); err != nil {
		return err
	}
	if _, err := ParseHexColor(o.Background); err != nil {
		return err
	}
	if _, err := recoveryLevel(o.Level); err != nil {
		return err
	}
	return nil
}

// Encode renders payload as a PNG. It has no side effects.
func Encode(payload []byte, opts Options) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("qr payload is empty")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	level, _ := recoveryLevel(opts.Level)

	code, err := qrcode.New(string(payload), level)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr code: %w", err)
	}
	code.DisableBorder = true

	img := Render(code.Bitmap(), opts)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Render draws a module bitmap into a square image of opts.Width pixels
// (or larger, if the bitmap cannot fit at one pixel per module).
func Render(bitmap [][]bool, opts Options) image.Image {
	fg, _ := ParseHexColor(opts.Foreground)
	bg, _ := ParseHexColor(opts.Background)

	modules := len(bitmap) + 2*opts.Margin
	width := opts.Width
	scale := width / modules
	if scale < 1 {
		scale = 1
		width = modules
	}
	offset := (width-modules*scale)/2 + opts.Margin*scale

	img := image.NewPaletted(image.Rect(0, 0, width, width), color.Palette{bg, fg})
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			px, py := offset+x*scale, offset+y*scale
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetColorIndex(px+dx, py+dy, 1)
				}
			}
		}
	}
	return img
}

// DataURI wraps a PNG for inline use in JSON responses
func DataURI(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

// ParseHexColor parses "#rgb" or "#rrggbb"
func ParseHexColor(s string) (color.RGBA, error) {
	c := color.RGBA{A: 0xff}
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")

	var err error
	switch len(hex) {
	case 6:
		_, err = fmt.Sscanf(hex, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 3:
		_, err = fmt.Sscanf(hex, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	default:
		err = fmt.Errorf("bad length")
	}
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

func recoveryLevel(level string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(level) {
	case "L":
		return qrcode.Low, nil
	case "", "M":
		return qrcode.Medium, nil
	case "Q":
		return qrcode.High, nil
	case "H":
		return qrcode.Highest, nil
	default:
		return qrcode.Medium, fmt.Errorf("invalid qr level %q", level)
	}
}
