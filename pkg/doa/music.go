package doa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// musicSolver implements MUSIC: per-bin noise-subspace projection of the
// steering vector, accumulated over the selected frequency bins.
//
// The complex Hermitian cross-spectrum R is embedded as the real symmetric
// matrix [[Re(R), -Im(R)], [Im(R), Re(R)]], whose eigendecomposition
// (mat.EigenSym) yields the same subspaces with eigenvalues duplicated.
// Projection norms onto the embedded noise subspace equal their complex
// counterparts, which is all the pseudo-spectrum needs.
type musicSolver struct {
	grid *grid
}

func (s *musicSolver) LocateSources(frames [][][]complex128, freqRange [2]float64) ([]float64, []float64, error) {
	loBin, hiBin, err := s.grid.checkFrames(frames, freqRange)
	if err != nil {
		return nil, nil, err
	}

	m := s.grid.channels
	numNoise := 2 * (m - s.grid.cfg.NumSources)
	power := make([]float64, len(s.grid.directions))

	embedded := mat.NewSymDense(2*m, nil)
	steering := make([]float64, 2*m) // (Re a; Im a)

	for k := loBin; k <= hiBin; k++ {
		r := s.grid.crossSpectrum(frames, k)

		for a := 0; a < m; a++ {
			for b := a; b < m; b++ {
				re := real(r[a*m+b])
				im := imag(r[a*m+b])
				embedded.SetSym(a, b, re)
				embedded.SetSym(m+a, m+b, re)
				// SetSym writes both triangles; the Im block is
				// antisymmetric, so set the full off-diagonal block via
				// its upper-triangle representative (a, m+b) = -Im.
				embedded.SetSym(a, m+b, -im)
				if a != b {
					embedded.SetSym(b, m+a, im)
				}
			}
		}

		var eig mat.EigenSym
		if !eig.Factorize(embedded, true) {
			return nil, nil, fmt.Errorf("doa: eigendecomposition failed at bin %d", k)
		}
		var vectors mat.Dense
		eig.VectorsTo(&vectors)

		omega := 2 * math.Pi * s.grid.binFrequency(k)
		norm := 1 / math.Sqrt(float64(m))

		for gi, delays := range s.grid.delays {
			for ch := 0; ch < m; ch++ {
				phase := -omega * delays[ch]
				steering[ch] = norm * math.Cos(phase)
				steering[m+ch] = norm * math.Sin(phase)
			}

			// Eigenvalues are ascending, so the first numNoise columns
			// span the embedded noise subspace.
			var proj float64
			for col := 0; col < numNoise; col++ {
				var dot float64
				for i := 0; i < 2*m; i++ {
					dot += vectors.At(i, col) * steering[i]
				}
				proj += dot * dot
			}
			if proj < 1e-12 {
				proj = 1e-12
			}
			power[gi] += 1 / proj
		}
	}

	az, colat := s.grid.pickPeaks(power, s.grid.cfg.NumSources)
	return az, colat, nil
}
