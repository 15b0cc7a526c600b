package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreAt(t *testing.T) {
	tests := []struct {
		name  string
		x, y  float64
		score Score
	}{
		{name: "inner bull", x: 200, y: 200, score: Score{Points: 50, Multiplier: 2, Label: "BULL"}},
		{name: "outer bull", x: 200, y: 185, score: Score{Points: 25, Multiplier: 1, Label: "25"}},
		{name: "single 20", x: 200, y: 140, score: Score{Points: 20, Multiplier: 1, Label: "S20"}},
		{name: "triple 20", x: 200, y: 80, score: Score{Points: 60, Multiplier: 3, Label: "T20"}},
		{name: "double 20", x: 200, y: 5, score: Score{Points: 40, Multiplier: 2, Label: "D20"}},
		{name: "double 6", x: 395, y: 200, score: Score{Points: 12, Multiplier: 2, Label: "D6"}},
		{name: "single 3", x: 200, y: 300, score: Score{Points: 3, Multiplier: 1, Label: "S3"}},
		{name: "double 11", x: 6, y: 200, score: Score{Points: 22, Multiplier: 2, Label: "D11"}},
		{name: "corner miss", x: 0, y: 0, score: Score{Label: "MISS"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScoreAt(tc.x, tc.y)
			require.NoError(t, err)
			require.Equal(t, tc.score, got)
		})
	}
}

func TestScoreAtRejectsOffBoard(t *testing.T) {
	for _, p := range [][2]float64{{-1, 10}, {10, 400.5}, {math.NaN(), 1}, {1, math.Inf(1)}} {
		_, err := ScoreAt(p[0], p[1])
		require.Error(t, err)
	}
}

func TestBustAndCheckout(t *testing.T) {
	tests := []struct {
		name                 string
		remaining, points, m int
		bust, checkout       bool
	}{
		{name: "double out", remaining: 40, points: 40, m: 2, checkout: true},
		{name: "bull out", remaining: 50, points: 50, m: 2, checkout: true},
		{name: "single to zero", remaining: 20, points: 20, m: 1, bust: true},
		{name: "overshoot", remaining: 10, points: 20, m: 1, bust: true},
		{name: "leaves one", remaining: 21, points: 20, m: 1, bust: true},
		{name: "normal", remaining: 501, points: 60, m: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.bust, IsBust(tc.remaining, tc.points, tc.m))
			require.Equal(t, tc.checkout, IsCheckout(tc.remaining, tc.points, tc.m))
		})
	}
}
