package heatmap

import (
	"image/color"
	"math"

	"heatflow/models"
)

// Bid colors run from dark blue to bright cyan, ask colors from dark red to
// bright orange.

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// BidColor maps an intensity in [0,1] onto the bid ramp.
func BidColor(intensity float64) color.RGBA {
	t := clampUnit(intensity)
	return color.RGBA{
		R: uint8(math.Floor(0 + t*20)),
		G: uint8(math.Floor(30 + t*225)),
		B: uint8(math.Floor(80 + t*175)),
		A: 255,
	}
}

// AskColor maps an intensity in [0,1] onto the ask ramp.
func AskColor(intensity float64) color.RGBA {
	t := clampUnit(intensity)
	return color.RGBA{
		R: uint8(math.Floor(80 + t*175)),
		G: uint8(math.Floor(20 + t*180)),
		B: uint8(math.Floor(0 + t*20)),
		A: 255,
	}
}

// ColorFor picks the ramp for side.
func ColorFor(side models.Side, intensity float64) color.RGBA {
	if side == models.SideBid {
		return BidColor(intensity)
	}
	return AskColor(intensity)
}
