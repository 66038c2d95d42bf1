package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/rydeworks/farepass/internal/models"
)

var (
	fontOnce     sync.Once
	parsedGoFont *opentype.Font
	parsedGoErr  error
)

// RenderPassPNG renders the scannable pass for a card: its QR hash with
// the balance and expiry labels above it. Callers must not render passes
// for locked cards.
func RenderPassPNG(card *models.Card, cls models.Classification) ([]byte, error) {
	const width = 480
	const height = 600
	const qrSize = 360

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	titleFace, err := newFontFace(28)
	if err != nil {
		return nil, err
	}
	defer func() { _ = titleFace.Close() }()

	labelFace, err := newFontFace(18)
	if err != nil {
		return nil, err
	}
	defer func() { _ = labelFace.Close() }()

	title := "Stored-value card"
	balanceLine := fmt.Sprintf("Balance: %d.%02d", card.Balance/100, card.Balance%100)
	if card.Type == models.CardTypeRound {
		title = "Round-trip pass"
		balanceLine = fmt.Sprintf("Trips left: %d", card.Balance)
	}

	drawText(img, titleFace, 30, 48, title, color.RGBA{0x2D, 0x2D, 0x2D, 0xFF})
	drawText(img, labelFace, 30, 86, balanceLine, color.RGBA{0x44, 0x44, 0x44, 0xFF})
	drawText(img, labelFace, 30, 114, "Expires: "+cls.ExpiresOn, color.RGBA{0x6B, 0x6B, 0x6B, 0xFF})
	drawText(img, labelFace, 30, 142, "Remaining: "+cls.TimeRemaining, color.RGBA{0x6B, 0x6B, 0x6B, 0xFF})

	qr, err := qrcode.New(card.Hash, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encoding card hash: %w", err)
	}
	qrImg := qr.Image(qrSize)
	qrLeft := (width - qrSize) / 2
	qrTop := height - qrSize - 40
	draw.Draw(img, image.Rect(qrLeft, qrTop, qrLeft+qrSize, qrTop+qrSize), qrImg, qrImg.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding pass png: %w", err)
	}
	return buf.Bytes(), nil
}

func newFontFace(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		parsedGoFont, parsedGoErr = opentype.Parse(goregular.TTF)
	})
	if parsedGoErr != nil {
		return nil, fmt.Errorf("parsing font: %w", parsedGoErr)
	}
	return opentype.NewFace(parsedGoFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func drawText(img *image.RGBA, face font.Face, x, y int, text string, c color.Color) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}
