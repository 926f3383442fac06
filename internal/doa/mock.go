package doa

import (
	"context"
	"sync"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/geometry"
)

// Mock is a Localizer returning fixed angles, for tests and the -mock
// driver flag. It can optionally derive the angles from the subset centroid
// so different subsets produce distinguishable results.
type Mock struct {
	mu         sync.Mutex
	azimuth    float64
	colatitude float64
	numSources int
	err        error
	perSubset  bool
	calls      int
}

// NewMock creates a mock localizer reporting the given angles for every
// requested source.
func NewMock(azimuth, colatitude float64, numSources int) *Mock {
	return &Mock{azimuth: azimuth, colatitude: colatitude, numSources: numSources}
}

// EstimateDirection returns the configured angles, once per source.
func (m *Mock) EstimateDirection(ctx context.Context, signals [][]float64, mics []geometry.Point) ([]float64, []float64, error) {
	if err := validateInputs(signals, mics); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, nil, errdefs.Estimation("mock", m.err)
	}

	azimuth := m.azimuth
	colatitude := m.colatitude
	if m.perSubset {
		// Small per-subset tilt keyed off the centroid, so callers can
		// tell subsets apart without a real solver.
		c, err := geometry.Centroid(mics)
		if err != nil {
			return nil, nil, err
		}
		azimuth += c[0]
		colatitude += c[2]
	}

	az := make([]float64, m.numSources)
	colat := make([]float64, m.numSources)
	for i := range az {
		az[i] = azimuth
		colat[i] = colatitude
	}
	return az, colat, nil
}

// SetAngles updates the reported angles.
func (m *Mock) SetAngles(azimuth, colatitude float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.azimuth = azimuth
	m.colatitude = colatitude
}

// SetError makes every subsequent call fail with an EstimationError.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPerSubset toggles centroid-derived angle variation.
func (m *Mock) SetPerSubset(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perSubset = v
}

// Calls returns how many estimates have been requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
