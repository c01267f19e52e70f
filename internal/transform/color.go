package transform

import (
	"fmt"
	"strconv"
)

// RGBA is a display color. Opacity is kept on the unit interval rather
// than as an alpha byte so interpolation stays exact.
type RGBA struct {
	R, G, B uint8
	Opacity float64
}

// String renders the color in the "(r, g, b, opacity)" form consumed
// by renderers.
func (c RGBA) String() string {
	return fmt.Sprintf("(%d, %d, %d, %s)",
		c.R, c.G, c.B, strconv.FormatFloat(c.Opacity, 'g', -1, 64))
}

// Ramp linearly interpolates between two colors over a value range.
// Values outside the range clamp to the nearest end.
type Ramp struct {
	Min, Max  float64
	Low, High RGBA
}

// At returns the interpolated color for value.
func (r Ramp) At(value float64) RGBA {
	fraction := (value - r.Min) / (r.Max - r.Min)
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	return RGBA{
		R: lerpByte(r.Low.R, r.High.R, fraction),
		G: lerpByte(r.Low.G, r.High.G, fraction),
		B: lerpByte(r.Low.B, r.High.B, fraction),
		Opacity: 1.0,
	}
}

func lerpByte(low, high uint8, fraction float64) uint8 {
	return uint8(float64(low) + (float64(high)-float64(low))*fraction)
}

// Unit-interval ramps used by the color transformations. Cold colors
// sit at the low end.
var (
	redBlueRamp = Ramp{
		Min: 0, Max: 1,
		Low:  RGBA{24, 100, 171, 1.0},
		High: RGBA{201, 42, 42, 1.0},
	}
	orangeRedRamp = Ramp{
		Min: 0, Max: 1,
		Low:  RGBA{255, 244, 230, 1.0},
		High: RGBA{217, 72, 15, 1.0},
	}
	greenBlueRamp = Ramp{
		Min: 0, Max: 1,
		Low:  RGBA{105, 219, 124, 1.0},
		High: RGBA{34, 139, 230, 1.0},
	}
)
