package scatter

import (
	"hash/fnv"
	"image/color"

	"github.com/sudorandom/fightscope/pkg/fights"
)

var (
	methodColors = map[fights.Method]color.RGBA{
		fights.MethodKO:    {231, 76, 60, 255},
		fights.MethodSUB:   {155, 89, 182, 255},
		fights.MethodDEC:   {52, 152, 219, 255},
		fights.MethodOther: {149, 165, 166, 255},
	}
	resultColors = map[fights.Result]color.RGBA{
		fights.ResultWin:  {46, 204, 113, 255},
		fights.ResultLoss: {192, 57, 43, 255},
		fights.ResultDraw: {241, 196, 15, 255},
	}
	divisionPalette = []color.RGBA{
		{255, 215, 0, 255},
		{0, 255, 255, 255},
		{255, 105, 180, 255},
		{173, 255, 47, 255},
		{255, 140, 0, 255},
		{135, 206, 250, 255},
	}
	HeatmapColor = color.RGBA{255, 160, 60, 255}
	TrendColor   = color.RGBA{255, 255, 255, 230}
	HoverColor   = color.RGBA{255, 255, 255, 255}
)

func MethodColor(m fights.Method) color.RGBA {
	if c, ok := methodColors[m]; ok {
		return c
	}
	return methodColors[fights.MethodOther]
}

func ResultColor(r fights.Result) color.RGBA {
	if c, ok := resultColors[r]; ok {
		return c
	}
	return color.RGBA{200, 200, 200, 255}
}

// Lookups resolve display attributes the plot does not own.
type Lookups struct {
	DivisionColor func(division string) color.RGBA
	MethodLabel   func(m fights.Method) string
	BitmapKey     func(f fights.Fight) string
}

// DefaultLookups hashes divisions onto a fixed palette and keys bitmaps by
// opponent.
func DefaultLookups() Lookups {
	return Lookups{
		DivisionColor: func(division string) color.RGBA {
			h := fnv.New32a()
			_, _ = h.Write([]byte(division))
			return divisionPalette[h.Sum32()%uint32(len(divisionPalette))]
		},
		MethodLabel: func(m fights.Method) string {
			if m == fights.MethodOther {
				return "OTH"
			}
			return string(m)
		},
		BitmapKey: func(f fights.Fight) string {
			if f.OpponentID != "" {
				return "opponent:" + f.OpponentID
			}
			return "fight:" + f.ID
		},
	}
}

func (l Lookups) withDefaults() Lookups {
	d := DefaultLookups()
	if l.DivisionColor == nil {
		l.DivisionColor = d.DivisionColor
	}
	if l.MethodLabel == nil {
		l.MethodLabel = d.MethodLabel
	}
	if l.BitmapKey == nil {
		l.BitmapKey = d.BitmapKey
	}
	return l
}
