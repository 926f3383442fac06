// Package stft provides short-time Fourier analysis of recorded microphone
// signals. It is the frequency-domain front end for the DOA solvers.
package stft

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Analyzer computes STFT frames for a fixed FFT size and hop.
type Analyzer struct {
	fftSize int
	hop     int
	window  []float64
	plan    *algofft.Plan[complex128]
}

// New creates an analyzer. fftSize must be a power of two; hop must be in
// (0, fftSize]. The half-overlap convention used by the pipeline is
// hop = fftSize/2.
func New(fftSize, hop int) (*Analyzer, error) {
	if fftSize < 2 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("stft: fft size must be a power of two >= 2: %d", fftSize)
	}
	if hop <= 0 || hop > fftSize {
		return nil, fmt.Errorf("stft: hop must be in (0, %d]: %d", fftSize, hop)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("stft: failed to create FFT plan: %w", err)
	}

	return &Analyzer{
		fftSize: fftSize,
		hop:     hop,
		window:  hann(fftSize),
		plan:    plan,
	}, nil
}

// Bins returns the number of non-redundant frequency bins per frame.
func (a *Analyzer) Bins() int { return a.fftSize/2 + 1 }

// BinFrequency returns the center frequency in Hz of bin k at the given
// sample rate.
func (a *Analyzer) BinFrequency(k, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(a.fftSize)
}

// Analyze returns the Hann-windowed STFT of signal: one []complex128 of
// Bins() values per frame. Signals shorter than one frame yield an error.
func (a *Analyzer) Analyze(signal []float64) ([][]complex128, error) {
	if len(signal) < a.fftSize {
		return nil, fmt.Errorf("stft: signal has %d samples, need at least %d",
			len(signal), a.fftSize)
	}

	numFrames := (len(signal)-a.fftSize)/a.hop + 1
	frames := make([][]complex128, 0, numFrames)

	timeFrame := make([]complex128, a.fftSize)
	freqFrame := make([]complex128, a.fftSize)

	for off := 0; off+a.fftSize <= len(signal); off += a.hop {
		for i := 0; i < a.fftSize; i++ {
			timeFrame[i] = complex(signal[off+i]*a.window[i], 0)
		}
		if err := a.plan.Forward(freqFrame, timeFrame); err != nil {
			return nil, fmt.Errorf("stft: forward transform: %w", err)
		}
		bins := make([]complex128, a.Bins())
		copy(bins, freqFrame[:a.Bins()])
		frames = append(frames, bins)
	}
	return frames, nil
}

func hann(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	return w
}
