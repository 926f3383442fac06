// Package localize is the estimate-generation core: it turns per-subset
// DOA angles into candidate point clouds along a radius sweep, and
// schedules subsets concurrently across a cycle.
package localize

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/doa"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/geometry"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/signalstore"
)

// Generator produces candidate points for one microphone subset.
type Generator struct {
	localizer  doa.Localizer
	radii      []float64
	numSources int
}

// NewGenerator creates a generator over a shared radius grid.
func NewGenerator(localizer doa.Localizer, radii []float64, numSources int) (*Generator, error) {
	if localizer == nil {
		return nil, errdefs.Validationf("generator: localizer is required")
	}
	if len(radii) == 0 {
		return nil, errdefs.Validationf("generator: radius grid is empty")
	}
	if numSources < 1 {
		return nil, errdefs.Validationf("generator: num sources must be >= 1: %d", numSources)
	}
	return &Generator{
		localizer:  localizer,
		radii:      radii,
		numSources: numSources,
	}, nil
}

// GenerateEstimates runs the full per-subset chain: match microphones to
// signal rows, compute the subset centroid, estimate angles, and sweep each
// per-source direction along the radius grid. The result is an Nx3 matrix
// of points in subset-local coordinates (before room re-centering), with
// numSources*len(radii) rows grouped by source.
func (g *Generator) GenerateEstimates(ctx context.Context, matrix [][]float64, micNames []string) (*mat.Dense, error) {
	signals, locations, err := signalstore.MatchMicrophones(matrix, micNames)
	if err != nil {
		return nil, err
	}

	centroid, err := geometry.Centroid(locations)
	if err != nil {
		return nil, err
	}

	azimuth, colatitude, err := g.localizer.EstimateDirection(ctx, signals, locations)
	if err != nil {
		return nil, err
	}

	// Contract check: the localizer must produce one angle pair per
	// requested source.
	if len(azimuth) != g.numSources || len(colatitude) != g.numSources {
		return nil, errdefs.Validationf(
			"generator: localizer returned %d azimuths and %d colatitudes, want %d each",
			len(azimuth), len(colatitude), g.numSources)
	}

	points := mat.NewDense(g.numSources*len(g.radii), 3, nil)
	for src := 0; src < g.numSources; src++ {
		unit := geometry.Unit(azimuth[src], colatitude[src])
		base := src * len(g.radii)
		for i, r := range g.radii {
			// Every source group re-centers on the same subset centroid.
			points.Set(base+i, 0, r*unit[0]+centroid[0])
			points.Set(base+i, 1, r*unit[1]+centroid[1])
			points.Set(base+i, 2, r*unit[2]+centroid[2])
		}
	}
	return points, nil
}

// PointsPerSubset returns the number of rows GenerateEstimates produces.
func (g *Generator) PointsPerSubset() int {
	return g.numSources * len(g.radii)
}
