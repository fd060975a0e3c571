package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindKnee(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		wantX  float64
	}{
		{
			name: "bandwidth saturates",
			points: []Point{
				{X: 2, Y: 40, Label: 4},
				{X: 3, Y: 80, Label: 8},
				{X: 4, Y: 150, Label: 16},
				{X: 5, Y: 160, Label: 32},
				{X: 6, Y: 162, Label: 64},
			},
			wantX: 4,
		},
		{
			// Every point lies on the chord; the first one wins.
			name: "linear",
			points: []Point{
				{X: 1, Y: 10},
				{X: 2, Y: 20},
				{X: 3, Y: 30},
			},
			wantX: 1,
		},
		{
			name: "flat",
			points: []Point{
				{X: 1, Y: 100},
				{X: 2, Y: 100},
				{X: 3, Y: 100},
			},
			wantX: 3,
		},
		{
			name: "unsorted input",
			points: []Point{
				{X: 4, Y: 100},
				{X: 1, Y: 0},
				{X: 3, Y: 100},
				{X: 2, Y: 0},
			},
			wantX: 3,
		},
		{
			name:   "too few points",
			points: []Point{{X: 1, Y: 5}, {X: 2, Y: 9}},
			wantX:  2,
		},
		{
			name:  "empty",
			wantX: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindKnee(tt.points)
			assert.Equal(t, tt.wantX, got.X)
		})
	}
}

func TestFindKneeKeepsLabel(t *testing.T) {
	knee := FindKnee([]Point{
		{X: 2, Y: 10, Label: 4},
		{X: 3, Y: 90, Label: 8},
		{X: 4, Y: 95, Label: 16},
		{X: 5, Y: 96, Label: 32},
	})
	assert.Equal(t, 8, knee.Label)
}
