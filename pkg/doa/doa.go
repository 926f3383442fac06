// Package doa implements frequency-domain direction-of-arrival solvers over
// a known microphone geometry. Solvers search a fixed azimuth/co-latitude
// grid and return the strongest source directions in radians.
package doa

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Grid resolution, matching the classic 1-degree / 360x180 search.
const (
	defaultAzimuthSteps    = 360
	defaultColatitudeSteps = 180
)

// Minimum angular separation between reported sources.
const peakSeparation = 10 * math.Pi / 180

// Config describes the array and transform parameters shared by all
// solvers.
type Config struct {
	// Mics is the 3xM microphone geometry in meters.
	Mics *mat.Dense
	// SampleRate in Hz.
	SampleRate int
	// FFTSize used by the STFT front end.
	FFTSize int
	// SoundSpeed in m/s.
	SoundSpeed float64
	// NumSources to localize; must be less than the channel count.
	NumSources int
}

// Solver localizes sources from STFT frames. frames is indexed as
// [channel][frame][bin] with FFTSize/2+1 bins per frame.
type Solver interface {
	LocateSources(frames [][][]complex128, freqRange [2]float64) (azimuth, colatitude []float64, err error)
}

// New constructs the named solver. Algorithm names are case-insensitive;
// "SRP" and "MUSIC" are supported.
func New(algorithm string, cfg Config) (Solver, error) {
	g, err := newGrid(cfg)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(algorithm) {
	case "SRP":
		return &srpSolver{grid: g}, nil
	case "MUSIC":
		return &musicSolver{grid: g}, nil
	default:
		return nil, fmt.Errorf("doa: unknown algorithm %q", algorithm)
	}
}

// grid precomputes the search directions and per-microphone delays.
type grid struct {
	cfg Config

	channels int
	// directions[g] is the unit vector for grid point g.
	directions [][3]float64
	// angles[g] is the (azimuth, colatitude) pair for grid point g.
	angles [][2]float64
	// delays[g][m] is the arrival delay at microphone m in seconds,
	// relative to the array centroid.
	delays [][]float64
}

func newGrid(cfg Config) (*grid, error) {
	if cfg.Mics == nil {
		return nil, fmt.Errorf("doa: microphone geometry is required")
	}
	rows, channels := cfg.Mics.Dims()
	if rows != 3 {
		return nil, fmt.Errorf("doa: microphone geometry must be 3xM, got %dx%d", rows, channels)
	}
	if channels < 2 {
		return nil, fmt.Errorf("doa: need at least 2 microphones, got %d", channels)
	}
	if cfg.NumSources < 1 {
		return nil, fmt.Errorf("doa: num sources must be >= 1: %d", cfg.NumSources)
	}
	if cfg.NumSources >= channels {
		return nil, fmt.Errorf("doa: num sources %d must be below channel count %d",
			cfg.NumSources, channels)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("doa: sample rate must be > 0: %d", cfg.SampleRate)
	}
	if cfg.FFTSize < 2 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("doa: fft size must be a power of two >= 2: %d", cfg.FFTSize)
	}
	if cfg.SoundSpeed <= 0 {
		return nil, fmt.Errorf("doa: sound speed must be > 0: %f", cfg.SoundSpeed)
	}

	// Delays are measured against the array centroid so the grid is local
	// to the subset, not the room.
	centroid := [3]float64{}
	for m := 0; m < channels; m++ {
		for d := 0; d < 3; d++ {
			centroid[d] += cfg.Mics.At(d, m)
		}
	}
	for d := 0; d < 3; d++ {
		centroid[d] /= float64(channels)
	}

	g := &grid{
		cfg:      cfg,
		channels: channels,
	}

	total := defaultAzimuthSteps * defaultColatitudeSteps
	g.directions = make([][3]float64, 0, total)
	g.angles = make([][2]float64, 0, total)
	g.delays = make([][]float64, 0, total)

	for ci := 0; ci < defaultColatitudeSteps; ci++ {
		colat := linspace(-math.Pi/2, math.Pi/2, defaultColatitudeSteps, ci)
		for ai := 0; ai < defaultAzimuthSteps; ai++ {
			az := linspace(-math.Pi, math.Pi, defaultAzimuthSteps, ai)

			dir := [3]float64{
				math.Cos(az) * math.Sin(colat),
				math.Sin(az) * math.Sin(colat),
				math.Cos(colat),
			}

			delays := make([]float64, channels)
			for m := 0; m < channels; m++ {
				var dot float64
				for d := 0; d < 3; d++ {
					dot += dir[d] * (cfg.Mics.At(d, m) - centroid[d])
				}
				// A source along dir reaches mics farther along dir first.
				delays[m] = -dot / cfg.SoundSpeed
			}

			g.directions = append(g.directions, dir)
			g.angles = append(g.angles, [2]float64{az, colat})
			g.delays = append(g.delays, delays)
		}
	}

	return g, nil
}

func linspace(lo, hi float64, n, i int) float64 {
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// checkFrames validates the frame tensor shape against the grid and
// returns the inclusive bin range covered by freqRange.
func (g *grid) checkFrames(frames [][][]complex128, freqRange [2]float64) (loBin, hiBin int, err error) {
	if len(frames) != g.channels {
		return 0, 0, fmt.Errorf("doa: got %d channels of frames, geometry has %d",
			len(frames), g.channels)
	}
	bins := g.cfg.FFTSize/2 + 1
	numFrames := -1
	for ch, chFrames := range frames {
		if len(chFrames) == 0 {
			return 0, 0, fmt.Errorf("doa: channel %d has no frames", ch)
		}
		if numFrames == -1 {
			numFrames = len(chFrames)
		} else if len(chFrames) != numFrames {
			return 0, 0, fmt.Errorf("doa: channel %d has %d frames, want %d",
				ch, len(chFrames), numFrames)
		}
		for fi, frame := range chFrames {
			if len(frame) != bins {
				return 0, 0, fmt.Errorf("doa: channel %d frame %d has %d bins, want %d",
					ch, fi, len(frame), bins)
			}
		}
	}

	if freqRange[1] < freqRange[0] || freqRange[0] < 0 {
		return 0, 0, fmt.Errorf("doa: invalid frequency range [%f, %f]",
			freqRange[0], freqRange[1])
	}

	binHz := float64(g.cfg.SampleRate) / float64(g.cfg.FFTSize)
	loBin = int(math.Ceil(freqRange[0] / binHz))
	hiBin = int(math.Floor(freqRange[1] / binHz))
	if loBin < 1 {
		loBin = 1 // skip DC, it carries no phase information
	}
	if hiBin > bins-1 {
		hiBin = bins - 1
	}
	if hiBin < loBin {
		return 0, 0, fmt.Errorf("doa: frequency range [%f, %f] selects no bins",
			freqRange[0], freqRange[1])
	}
	return loBin, hiBin, nil
}

// binFrequency returns the center frequency of bin k in Hz.
func (g *grid) binFrequency(k int) float64 {
	return float64(k) * float64(g.cfg.SampleRate) / float64(g.cfg.FFTSize)
}

// crossSpectrum averages x_k x_k^H over frames for bin k. The result is a
// channels x channels Hermitian matrix in row-major order.
func (g *grid) crossSpectrum(frames [][][]complex128, k int) []complex128 {
	m := g.channels
	r := make([]complex128, m*m)
	numFrames := len(frames[0])

	for fi := 0; fi < numFrames; fi++ {
		for a := 0; a < m; a++ {
			xa := frames[a][fi][k]
			for b := 0; b < m; b++ {
				xb := frames[b][fi][k]
				r[a*m+b] += xa * complexConj(xb)
			}
		}
	}
	scale := complex(1/float64(numFrames), 0)
	for i := range r {
		r[i] *= scale
	}
	return r
}

func complexConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

// pickPeaks selects the num strongest grid points from power, enforcing a
// minimum angular separation, and returns their angles ranked by power.
func (g *grid) pickPeaks(power []float64, num int) (azimuth, colatitude []float64) {
	order := make([]int, len(power))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return power[order[i]] > power[order[j]]
	})

	minCos := math.Cos(peakSeparation)
	picked := make([]int, 0, num)
	for _, idx := range order {
		if len(picked) == num {
			break
		}
		ok := true
		for _, p := range picked {
			var dot float64
			for d := 0; d < 3; d++ {
				dot += g.directions[idx][d] * g.directions[p][d]
			}
			if dot > minCos {
				ok = false
				break
			}
		}
		if ok {
			picked = append(picked, idx)
		}
	}
	// If separation left too few candidates, fill with the global order.
	for _, idx := range order {
		if len(picked) == num {
			break
		}
		seen := false
		for _, p := range picked {
			if p == idx {
				seen = true
				break
			}
		}
		if !seen {
			picked = append(picked, idx)
		}
	}

	azimuth = make([]float64, len(picked))
	colatitude = make([]float64, len(picked))
	for i, idx := range picked {
		azimuth[i], colatitude[i] = canonicalAngles(g.angles[idx][0], g.angles[idx][1])
	}
	return azimuth, colatitude
}

// canonicalAngles maps an (azimuth, colatitude) pair to its canonical
// parametrization with colatitude >= 0. The grid spans colatitude
// [-pi/2, pi/2], so (az, colat) and (az+-pi, -colat) name the same
// direction; report only one of the twins.
func canonicalAngles(az, colat float64) (float64, float64) {
	if colat >= 0 {
		return az, colat
	}
	if az < 0 {
		az += math.Pi
	} else {
		az -= math.Pi
	}
	return az, -colat
}
