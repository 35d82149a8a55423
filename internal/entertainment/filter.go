package entertainment

import "math"

// Frame-skipping tolerances for links that cannot keep up with the full
// frame rate. Color wins over brightness: a chroma move is always sent even
// when the brightness moved too.
const (
	chromaTolerance = 0.03
	briTolerance    = 16
)

// Send operations chosen by the frame filter.
const (
	sendNothing = iota
	sendBrightness
	sendColor
)

type appliedFrame struct {
	x, y float64
	bri  int
}

// frameFilter drops frames that moved less than the tolerances since the
// last applied one, per light.
type frameFilter struct {
	last map[string]appliedFrame
}

func newFrameFilter() *frameFilter {
	return &frameFilter{last: make(map[string]appliedFrame)}
}

// check decides what, if anything, to send for a light and records the
// accepted values.
func (f *frameFilter) check(lightID string, x, y float64, bri int) int {
	prev := f.last[lightID]

	if math.Abs(prev.x-x) > chromaTolerance || math.Abs(prev.y-y) > chromaTolerance {
		prev.x = x
		prev.y = y
		f.last[lightID] = prev
		return sendColor
	}
	if abs(prev.bri-bri) > briTolerance {
		prev.bri = bri
		f.last[lightID] = prev
		return sendBrightness
	}
	return sendNothing
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
