// Package doa adapts the frequency-domain DOA solvers to the localization
// pipeline: it validates subset inputs, runs the STFT front end, and maps
// solver failures into the pipeline's error kinds.
package doa

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/geometry"
	pkgdoa "github.com/Zhouziyuya/Sound-Source-Localization/pkg/doa"
	"github.com/Zhouziyuya/Sound-Source-Localization/pkg/stft"
)

// Localizer estimates source directions for one microphone subset. Both
// returned slices have one entry per requested source, ranked by estimated
// signal strength.
type Localizer interface {
	EstimateDirection(ctx context.Context, signals [][]float64, mics []geometry.Point) (azimuth, colatitude []float64, err error)
}

// Config configures the Adapter.
type Config struct {
	Algorithm   string
	NumSources  int
	SampleRate  int
	FFTSize     int
	SoundSpeed  float64
	FreqRangeHz [2]float64
}

// Adapter runs the STFT and a named solver over a subset's signals.
type Adapter struct {
	cfg      Config
	analyzer *stft.Analyzer
}

// New creates an adapter. The algorithm name is checked eagerly against a
// throwaway geometry so misconfiguration fails at startup, not per subset.
func New(cfg Config) (*Adapter, error) {
	analyzer, err := stft.New(cfg.FFTSize, cfg.FFTSize/2)
	if err != nil {
		return nil, errdefs.Validationf("doa adapter: %v", err)
	}

	probe := mat.NewDense(3, cfg.NumSources+1, nil)
	for m := 0; m <= cfg.NumSources; m++ {
		probe.Set(0, m, float64(m))
	}
	if _, err := pkgdoa.New(cfg.Algorithm, pkgdoa.Config{
		Mics:       probe,
		SampleRate: cfg.SampleRate,
		FFTSize:    cfg.FFTSize,
		SoundSpeed: cfg.SoundSpeed,
		NumSources: cfg.NumSources,
	}); err != nil {
		return nil, errdefs.Validationf("doa adapter: %v", err)
	}

	return &Adapter{cfg: cfg, analyzer: analyzer}, nil
}

// EstimateDirection transforms each signal to the frequency domain and runs
// source localization restricted to the configured frequency range.
func (a *Adapter) EstimateDirection(ctx context.Context, signals [][]float64, mics []geometry.Point) ([]float64, []float64, error) {
	if err := validateInputs(signals, mics); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	frames := make([][][]complex128, len(signals))
	for i, signal := range signals {
		f, err := a.analyzer.Analyze(signal)
		if err != nil {
			return nil, nil, errdefs.Validationf("doa adapter: channel %d: %v", i, err)
		}
		frames[i] = f
	}

	// Geometry in [x y z] column order, one column per microphone.
	geom := mat.NewDense(3, len(mics), nil)
	for m, loc := range mics {
		for d := 0; d < 3; d++ {
			geom.Set(d, m, loc[d])
		}
	}

	solver, err := pkgdoa.New(a.cfg.Algorithm, pkgdoa.Config{
		Mics:       geom,
		SampleRate: a.cfg.SampleRate,
		FFTSize:    a.cfg.FFTSize,
		SoundSpeed: a.cfg.SoundSpeed,
		NumSources: a.cfg.NumSources,
	})
	if err != nil {
		return nil, nil, errdefs.Estimation(a.cfg.Algorithm, err)
	}

	azimuth, colatitude, err := solver.LocateSources(frames, a.cfg.FreqRangeHz)
	if err != nil {
		return nil, nil, errdefs.Estimation(a.cfg.Algorithm, err)
	}
	return azimuth, colatitude, nil
}

func validateInputs(signals [][]float64, mics []geometry.Point) error {
	if len(signals) == 0 {
		return errdefs.Validationf("doa adapter: signal list is empty")
	}
	for i, signal := range signals {
		if len(signal) == 0 {
			return errdefs.Validationf("doa adapter: signal %d is empty", i)
		}
		for j, v := range signal {
			if math.IsNaN(v) {
				return errdefs.Validationf("doa adapter: signal %d sample %d is NaN", i, j)
			}
		}
	}
	if len(mics) == 0 {
		return errdefs.Validationf("doa adapter: microphone location list is empty")
	}
	for i, loc := range mics {
		if loc == nil {
			return errdefs.Validationf("doa adapter: microphone location %d is nil", i)
		}
		if len(loc) != 3 {
			return errdefs.Validationf("doa adapter: microphone location %d has %d coordinates, want 3",
				i, len(loc))
		}
	}
	if len(signals) != len(mics) {
		return errdefs.Validationf("doa adapter: %d signals for %d microphones",
			len(signals), len(mics))
	}
	return nil
}
