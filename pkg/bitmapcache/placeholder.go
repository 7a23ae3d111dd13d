package bitmapcache

import (
	"hash/fnv"
	"image"
	"image/color"
	"sync"

	"github.com/sudorandom/fightscope/pkg/fights"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var placeholderPalette = []color.RGBA{
	{231, 76, 60, 255},
	{230, 126, 34, 255},
	{241, 196, 15, 255},
	{46, 204, 113, 255},
	{26, 188, 156, 255},
	{52, 152, 219, 255},
	{155, 89, 182, 255},
	{149, 165, 166, 255},
}

var (
	boldOnce sync.Once
	boldFont *opentype.Font
)

func loadBold() *opentype.Font {
	boldOnce.Do(func() {
		f, err := opentype.Parse(gobold.TTF)
		if err != nil {
			panic(err) // embedded font
		}
		boldFont = f
	})
	return boldFont
}

// PlaceholderColor picks a stable color for label.
func PlaceholderColor(label string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	return placeholderPalette[h.Sum32()%uint32(len(placeholderPalette))]
}

// Placeholder draws label's initials on a colored circle.
func Placeholder(label string, size int) *image.RGBA {
	if size <= 0 {
		size = DefaultSize
	}
	bg := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(bg, bg.Bounds(), image.NewUniform(PlaceholderColor(label)), image.Point{}, draw.Src)

	initials := fights.Initials(label)
	face, err := opentype.NewFace(loadBold(), &opentype.FaceOptions{
		Size:    float64(size) * 0.4,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err == nil {
		d := &font.Drawer{Dst: bg, Src: image.White, Face: face}
		adv := d.MeasureString(initials)
		m := face.Metrics()
		x := (fixed.I(size) - adv) / 2
		y := (fixed.I(size) + m.Ascent - m.Descent) / 2
		d.Dot = fixed.Point26_6{X: x, Y: y}
		d.DrawString(initials)
		_ = face.Close()
	}

	out := image.NewRGBA(bg.Bounds())
	draw.DrawMask(out, out.Bounds(), bg, image.Point{}, &circle{r: float64(size) / 2}, image.Point{}, draw.Over)
	return out
}
