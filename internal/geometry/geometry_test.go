package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
)

func TestMicrophoneLayout(t *testing.T) {
	layout := MicrophoneLayout()

	require.Len(t, layout, MicrophoneCount)

	// mic1 is the first x with the first z, mic5 starts the second x block.
	assert.Equal(t, Point{-0.102235, -0.109982, 0.056388}, layout[0])
	assert.Equal(t, Point{-0.102235, -0.109982, -0.108204}, layout[3])
	assert.Equal(t, Point{-0.052197, -0.109982, 0.056388}, layout[4])
	assert.Equal(t, Point{-0.027304, -0.109982, -0.108204}, layout[11])

	// Layout is deterministic.
	assert.Equal(t, layout, MicrophoneLayout())
}

func TestCentroid(t *testing.T) {
	tests := []struct {
		name string
		locs []Point
		want Point
	}{
		{
			name: "single location is its own centroid",
			locs: []Point{{1, 2, 3}},
			want: Point{1, 2, 3},
		},
		{
			name: "coordinate-wise mean",
			locs: []Point{{0, 0, 0}, {2, 4, 6}},
			want: Point{1, 2, 3},
		},
		{
			name: "three microphones",
			locs: []Point{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			want: Point{1.0 / 3, 1.0 / 3, 1.0 / 3},
		},
		{
			name: "two dimensional input keeps its dimensionality",
			locs: []Point{{1, 1}, {3, 3}},
			want: Point{2, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Centroid(tt.locs)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestCentroid_Validation(t *testing.T) {
	tests := []struct {
		name string
		locs []Point
	}{
		{name: "empty input", locs: nil},
		{name: "nil location", locs: []Point{{1, 2, 3}, nil}},
		{name: "inconsistent dimensionality", locs: []Point{{1, 2, 3}, {1, 2}}},
		{name: "non-numeric coordinate", locs: []Point{{1, math.NaN(), 3}}},
		{name: "infinite coordinate", locs: []Point{{1, math.Inf(1), 3}}},
		{name: "zero-dimensional locations", locs: []Point{{}, {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Centroid(tt.locs)
			require.Error(t, err)
			assert.True(t, errdefs.IsValidation(err), "want ValidationError, got %v", err)
		})
	}
}

func TestCentroid_MicLayout(t *testing.T) {
	layout := MicrophoneLayout()

	got, err := Centroid(layout)
	require.NoError(t, err)

	// All mics share one y plane, so the centroid keeps it exactly.
	assert.InDelta(t, -0.109982, got[1], 1e-12)
}

func TestRadiusGrid(t *testing.T) {
	grid := RadiusGrid(0.5, 1e-3)

	require.Len(t, grid, 500)
	assert.Equal(t, 0.0, grid[0])
	assert.InDelta(t, 0.499, grid[len(grid)-1], 1e-9)
	assert.InDelta(t, 1e-3, grid[1]-grid[0], 1e-12)

	// Upper bound is exclusive.
	for _, r := range grid {
		assert.Less(t, r, 0.5)
	}

	assert.Nil(t, RadiusGrid(0, 1e-3))
	assert.Nil(t, RadiusGrid(0.5, 0))
}

func TestRoomCenter(t *testing.T) {
	center := RoomCenter()

	require.Len(t, center, 3)
	assert.InDelta(t, 0.34925/2, center[0], 1e-12)
	assert.InDelta(t, 0.219964/2, center[1], 1e-12)
	assert.InDelta(t, 0.2413/2, center[2], 1e-12)
}

func TestUnit(t *testing.T) {
	tests := []struct {
		name       string
		azimuth    float64
		colatitude float64
		want       Point
	}{
		{name: "north pole", azimuth: 0, colatitude: 0, want: Point{0, 0, 1}},
		{name: "+x axis", azimuth: 0, colatitude: math.Pi / 2, want: Point{1, 0, 0}},
		{name: "+y axis", azimuth: math.Pi / 2, colatitude: math.Pi / 2, want: Point{0, 1, 0}},
		{name: "-x axis", azimuth: math.Pi, colatitude: math.Pi / 2, want: Point{-1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unit(tt.azimuth, tt.colatitude)
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}

			// Always a unit vector.
			norm := math.Sqrt(got[0]*got[0] + got[1]*got[1] + got[2]*got[2])
			assert.InDelta(t, 1.0, norm, 1e-12)
		})
	}
}
