// Package geometry provides the fixed microphone array layout, centroid
// computation, and the room constants used to re-center candidate points.
package geometry

import (
	"math"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
)

// Point is a location in meters. The array is 3-D throughout, but Centroid
// only requires all inputs to share a dimensionality.
type Point []float64

// MicrophoneCount is the number of channels in every recorded cycle.
const MicrophoneCount = 12

// RoomDimensions is the enclosure size in meters (width, depth, length).
var RoomDimensions = Point{0.34925, 0.219964, 0.2413}

// RoomCenter returns the room center, the origin shift applied to every
// candidate point at the end of cycle processing.
func RoomCenter() Point {
	center := make(Point, len(RoomDimensions))
	for i, d := range RoomDimensions {
		center[i] = d / 2
	}
	return center
}

// MicrophoneLayout returns the fixed ordered list of 12 microphone
// locations: the Cartesian product of 3 x-values, 1 y-value, and 4
// z-values, x-major. mic1 is index 0.
func MicrophoneLayout() []Point {
	xs := []float64{-0.102235, -0.052197, -0.027304}
	ys := []float64{-0.109982}
	zs := []float64{0.056388, 0.001524, -0.053340, -0.108204}

	layout := make([]Point, 0, len(xs)*len(ys)*len(zs))
	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				layout = append(layout, Point{x, y, z})
			}
		}
	}
	return layout
}

// Centroid returns the coordinate-wise mean of the given locations.
func Centroid(locs []Point) (Point, error) {
	if len(locs) == 0 {
		return nil, errdefs.Validationf("centroid: location list is empty")
	}

	dim := -1
	for i, loc := range locs {
		if loc == nil {
			return nil, errdefs.Validationf("centroid: location %d is nil", i)
		}
		if dim == -1 {
			dim = len(loc)
		} else if len(loc) != dim {
			return nil, errdefs.Validationf(
				"centroid: location %d has %d coordinates, want %d", i, len(loc), dim)
		}
		for j, c := range loc {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, errdefs.Validationf(
					"centroid: location %d coordinate %d is not finite", i, j)
			}
		}
	}
	if dim == 0 {
		return nil, errdefs.Validationf("centroid: locations have no coordinates")
	}

	mean := make(Point, dim)
	for _, loc := range locs {
		for j, c := range loc {
			mean[j] += c
		}
	}
	for j := range mean {
		mean[j] /= float64(len(locs))
	}
	return mean, nil
}

// RadiusGrid returns the candidate radii [0, max) spaced by step. DOA gives
// direction only, so every estimate is swept along this grid.
func RadiusGrid(max, step float64) []float64 {
	if step <= 0 || max <= 0 {
		return nil
	}
	n := int(math.Ceil(max / step))
	grid := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		r := float64(i) * step
		if r >= max {
			break
		}
		grid = append(grid, r)
	}
	return grid
}

// Unit converts an azimuth/co-latitude pair (radians) into a unit Cartesian
// direction.
func Unit(azimuth, colatitude float64) Point {
	return Point{
		math.Cos(azimuth) * math.Sin(colatitude),
		math.Sin(azimuth) * math.Sin(colatitude),
		math.Cos(colatitude),
	}
}
