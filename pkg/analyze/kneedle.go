package analyze

import (
	"sort"
)

// Point is one measurement on a scaling curve.
type Point struct {
	X     float64
	Y     float64
	Label int // the parameter value X was derived from, e.g. block size in KB
}

// FindKnee implements the Kneedle algorithm to find the point of maximum
// curvature. The sweep feeds it bandwidth against log2 of the block size;
// that curve is assumed concave and increasing, flattening out once larger
// blocks stop buying throughput. The returned point's Label is the block
// size to pick. points is sorted in place.
func FindKnee(points []Point) Point {
	if len(points) < 3 {
		if len(points) > 0 {
			return points[len(points)-1]
		}
		return Point{}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].X < points[j].X
	})

	minX, maxX := points[0].X, points[len(points)-1].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if maxX == minX || maxY == minY {
		return points[len(points)-1]
	}

	// In normalized space the chord from first to last point is y = x; the
	// knee is the point furthest above it.
	maxDist := -1.0
	var knee Point
	for _, p := range points {
		xNorm := (p.X - minX) / (maxX - minX)
		yNorm := (p.Y - minY) / (maxY - minY)
		if dist := yNorm - xNorm; dist > maxDist {
			maxDist = dist
			knee = p
		}
	}
	return knee
}
