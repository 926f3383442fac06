package doa

import (
	"math"
	"math/cmplx"
)

// srpSolver implements SRP-PHAT: steered response power with phase
// transform weighting, accumulated over the selected frequency bins.
type srpSolver struct {
	grid *grid
}

func (s *srpSolver) LocateSources(frames [][][]complex128, freqRange [2]float64) ([]float64, []float64, error) {
	loBin, hiBin, err := s.grid.checkFrames(frames, freqRange)
	if err != nil {
		return nil, nil, err
	}

	m := s.grid.channels
	power := make([]float64, len(s.grid.directions))

	for k := loBin; k <= hiBin; k++ {
		r := s.grid.crossSpectrum(frames, k)

		// PHAT weighting keeps phase only.
		for i, v := range r {
			if abs := cmplx.Abs(v); abs > 0 {
				r[i] = v / complex(abs, 0)
			}
		}

		omega := 2 * math.Pi * s.grid.binFrequency(k)
		for gi, delays := range s.grid.delays {
			var acc float64
			for a := 0; a < m; a++ {
				for b := a + 1; b < m; b++ {
					// Steer the cross-spectrum toward this direction:
					// Re{ R_ab * exp(-j*omega*(tau_b - tau_a)) }.
					phase := omega * (delays[b] - delays[a])
					v := r[a*m+b]
					acc += real(v)*math.Cos(phase) + imag(v)*math.Sin(phase)
				}
			}
			power[gi] += acc
		}
	}

	az, colat := s.grid.pickPeaks(power, s.grid.cfg.NumSources)
	return az, colat, nil
}
