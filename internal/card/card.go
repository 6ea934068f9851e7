// Package card renders a shareable PNG status card for a route's latest
// gritting prediction.
package card

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/gritting/internal/models"
)

const (
	Width  = 1200
	Height = 630
)

var (
	fontTitle    font.Face
	fontHeadline font.Face
	fontBody     font.Face
	fontOnce     sync.Once
	fontErr      error
)

func loadFonts() {
	fontOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Regular: %w", err)
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Bold: %w", err)
			return
		}

		if fontTitle, err = newFace(regular, 40); err != nil {
			fontErr = err
			return
		}
		if fontHeadline, err = newFace(bold, 110); err != nil {
			fontErr = err
			return
		}
		if fontBody, err = newFace(regular, 32); err != nil {
			fontErr = err
		}
	})
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create %.0fpt face: %w", size, err)
	}
	return face, nil
}

// palette returns the top and bottom background colours for a prediction.
func palette(p models.PredictionResult) (color.RGBA, color.RGBA) {
	switch {
	case !p.Gritting():
		return color.RGBA{18, 52, 48, 255}, color.RGBA{10, 28, 30, 255}
	case p.IceRisk == models.RiskHigh || p.SnowRisk == models.RiskHigh:
		return color.RGBA{110, 24, 28, 255}, color.RGBA{40, 10, 16, 255}
	default:
		return color.RGBA{120, 72, 12, 255}, color.RGBA{44, 26, 8, 255}
	}
}

// Render draws the status card for p as a PNG.
func Render(p models.PredictionResult) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	top, bottom := palette(p)
	drawGradient(img, top, bottom)

	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{205, 205, 205, 255}

	drawText(img, fmt.Sprintf("%s  %s", p.RouteID, p.RouteName), 60, 90, lightGray, fontTitle)

	headline := "NO GRITTING"
	if p.Gritting() {
		headline = fmt.Sprintf("GRIT %d kg", p.SaltAmountKg)
	}
	drawText(img, headline, 60, 250, white, fontHeadline)

	details := fmt.Sprintf("Confidence %.0f%%   Ice risk %s   Snow risk %s",
		p.DecisionConfidence*100, p.IceRisk, p.SnowRisk)
	drawText(img, details, 60, 340, white, fontBody)

	if p.Gritting() {
		drawText(img, fmt.Sprintf("%d g/m²   ~%d min", p.SpreadRateGM2, p.EstimatedDurationMin), 60, 395, lightGray, fontBody)
	}

	y := 480
	for _, line := range wrap(p.Recommendation, 60) {
		drawText(img, line, 60, y, lightGray, fontBody)
		y += 44
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func drawGradient(img *image.RGBA, top, bottom color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		t := float64(y-b.Min.Y) / float64(b.Dy())
		c := color.RGBA{
			R: lerp(top.R, bottom.R, t),
			G: lerp(top.G, bottom.G, t),
			B: lerp(top.B, bottom.B, t),
			A: 255,
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// wrap splits s into lines of at most width bytes, breaking on spaces.
func wrap(s string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(s) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
