package heatmap

import (
	"image/color"
	"math"
	"testing"

	"heatflow/models"
)

func TestColorEndpoints(t *testing.T) {
	cases := []struct {
		name string
		got  color.RGBA
		want color.RGBA
	}{
		{"bid low", BidColor(0), color.RGBA{R: 0, G: 30, B: 80, A: 255}},
		{"bid high", BidColor(1), color.RGBA{R: 20, G: 255, B: 255, A: 255}},
		{"ask low", AskColor(0), color.RGBA{R: 80, G: 20, B: 0, A: 255}},
		{"ask high", AskColor(1), color.RGBA{R: 255, G: 200, B: 20, A: 255}},
		{"bid mid", BidColor(0.5), color.RGBA{R: 10, G: 142, B: 167, A: 255}},
		{"ask mid", AskColor(0.5), color.RGBA{R: 167, G: 110, B: 10, A: 255}},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestColorClampsIntensity(t *testing.T) {
	if BidColor(1.5) != BidColor(1) {
		t.Error("bid intensity above 1 should clamp")
	}
	if AskColor(-0.2) != AskColor(0) {
		t.Error("ask intensity below 0 should clamp")
	}
	if BidColor(math.NaN()) != BidColor(0) {
		t.Error("NaN intensity should map to the low end")
	}
}

func TestColorForSide(t *testing.T) {
	if ColorFor(models.SideBid, 0.3) != BidColor(0.3) {
		t.Error("bid side should use the bid ramp")
	}
	if ColorFor(models.SideAsk, 0.3) != AskColor(0.3) {
		t.Error("ask side should use the ask ramp")
	}
}
