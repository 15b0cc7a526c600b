package scoring

import (
	"fmt"
	"math"

	"dart-ledger-go/internal/apperr"
)

// Board geometry on a 0..BoardSize square with the bull at the centre.
// Ring radii are the regulation board scaled so the outer double wire sits
// at BoardSize/2.
const (
	BoardSize = 400.0

	center          = BoardSize / 2
	innerBullRadius = 7.5
	outerBullRadius = 18.7
	tripleInner     = 116.5
	tripleOuter     = 125.9
	doubleInner     = 188.2
	doubleOuter     = 200.0
	segmentDegrees  = 18.0
)

// sectors runs clockwise starting at the top of the board.
var sectors = [20]int{20, 1, 18, 4, 13, 6, 10, 15, 2, 17, 3, 19, 7, 16, 8, 11, 14, 9, 12, 5}

type Score struct {
	Points     int    `json:"points"`
	Multiplier int    `json:"multiplier"`
	Label      string `json:"label"`
}

// ValidPosition reports whether (x, y) lies on the coordinate space.
func ValidPosition(x, y float64) bool {
	for _, v := range []float64{x, y} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > BoardSize {
			return false
		}
	}
	return true
}

// ScoreAt maps a landing position to points. y grows downwards.
func ScoreAt(x, y float64) (Score, error) {
	if !ValidPosition(x, y) {
		return Score{}, apperr.InvalidArgument("position (%v, %v) is off the board", x, y)
	}

	dx, dy := x-center, y-center
	r := math.Hypot(dx, dy)
	switch {
	case r <= innerBullRadius:
		return Score{Points: 50, Multiplier: 2, Label: "BULL"}, nil
	case r <= outerBullRadius:
		return Score{Points: 25, Multiplier: 1, Label: "25"}, nil
	case r > doubleOuter:
		return Score{Points: 0, Multiplier: 0, Label: "MISS"}, nil
	}

	angle := math.Atan2(dx, -dy) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}
	idx := int(math.Mod(angle+segmentDegrees/2, 360) / segmentDegrees)
	base := sectors[idx%len(sectors)]

	switch {
	case r >= doubleInner:
		return Score{Points: base * 2, Multiplier: 2, Label: fmt.Sprintf("D%d", base)}, nil
	case r >= tripleInner && r <= tripleOuter:
		return Score{Points: base * 3, Multiplier: 3, Label: fmt.Sprintf("T%d", base)}, nil
	}
	return Score{Points: base, Multiplier: 1, Label: fmt.Sprintf("S%d", base)}, nil
}

// IsBust reports a throw that overshoots, leaves one, or reaches zero
// without a double.
func IsBust(remaining, points, multiplier int) bool {
	after := remaining - points
	return after < 0 || after == 1 || (after == 0 && multiplier != 2)
}

// IsCheckout reports a throw that finishes exactly on a double.
func IsCheckout(remaining, points, multiplier int) bool {
	return remaining-points == 0 && multiplier == 2
}
