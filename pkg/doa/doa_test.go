package doa

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testMics is a small non-collinear planar array in the x-z plane, similar
// to one microphone subset of the recording rig.
func testMics() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		-0.102235, -0.102235, -0.052197,
		-0.109982, -0.109982, -0.109982,
		0.001524, -0.053340, 0.001524,
	})
}

func testConfig(numSources int) Config {
	return Config{
		Mics:       testMics(),
		SampleRate: 16000,
		FFTSize:    256,
		SoundSpeed: 30,
		NumSources: numSources,
	}
}

// planeWaveFrames synthesizes STFT frames for a noiseless plane wave
// arriving from (azimuth, colatitude), using the same arrival model the
// solvers assume.
func planeWaveFrames(t *testing.T, cfg Config, azimuth, colatitude float64, numFrames int) [][][]complex128 {
	t.Helper()

	_, channels := cfg.Mics.Dims()
	bins := cfg.FFTSize/2 + 1

	dir := [3]float64{
		math.Cos(azimuth) * math.Sin(colatitude),
		math.Sin(azimuth) * math.Sin(colatitude),
		math.Cos(colatitude),
	}

	centroid := [3]float64{}
	for m := 0; m < channels; m++ {
		for d := 0; d < 3; d++ {
			centroid[d] += cfg.Mics.At(d, m)
		}
	}
	for d := 0; d < 3; d++ {
		centroid[d] /= float64(channels)
	}

	frames := make([][][]complex128, channels)
	for ch := 0; ch < channels; ch++ {
		var dot float64
		for d := 0; d < 3; d++ {
			dot += dir[d] * (cfg.Mics.At(d, ch) - centroid[d])
		}
		delay := -dot / cfg.SoundSpeed

		frames[ch] = make([][]complex128, numFrames)
		for fi := 0; fi < numFrames; fi++ {
			frame := make([]complex128, bins)
			// Source amplitude varies per frame; phase structure does not.
			amp := cmplx.Exp(complex(0, float64(fi)))
			for k := 1; k < bins; k++ {
				f := float64(k) * float64(cfg.SampleRate) / float64(cfg.FFTSize)
				frame[k] = amp * cmplx.Exp(complex(0, -2*math.Pi*f*delay))
			}
			frames[ch][fi] = frame
		}
	}
	return frames
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		modify    func(*Config)
		wantErr   bool
	}{
		{name: "srp", algorithm: "SRP"},
		{name: "music", algorithm: "MUSIC"},
		{name: "lowercase name", algorithm: "srp"},
		{name: "unknown algorithm", algorithm: "FRIDA", wantErr: true},
		{
			name:      "missing geometry",
			algorithm: "SRP",
			modify:    func(c *Config) { c.Mics = nil },
			wantErr:   true,
		},
		{
			name:      "wrong geometry shape",
			algorithm: "SRP",
			modify:    func(c *Config) { c.Mics = mat.NewDense(2, 3, nil) },
			wantErr:   true,
		},
		{
			name:      "too many sources",
			algorithm: "SRP",
			modify:    func(c *Config) { c.NumSources = 3 },
			wantErr:   true,
		},
		{
			name:      "zero sources",
			algorithm: "SRP",
			modify:    func(c *Config) { c.NumSources = 0 },
			wantErr:   true,
		},
		{
			name:      "bad fft size",
			algorithm: "SRP",
			modify:    func(c *Config) { c.FFTSize = 100 },
			wantErr:   true,
		},
		{
			name:      "bad sound speed",
			algorithm: "SRP",
			modify:    func(c *Config) { c.SoundSpeed = 0 },
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			_, err := New(tt.algorithm, cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocateSources_PlaneWave(t *testing.T) {
	// Directions stay in the x-z plane: the test array is planar, so
	// off-plane directions have a mirror ambiguity.
	tests := []struct {
		name       string
		algorithm  string
		azimuth    float64
		colatitude float64
	}{
		{name: "srp forward up", algorithm: "SRP", azimuth: 0, colatitude: math.Pi / 3},
		{name: "srp overhead", algorithm: "SRP", azimuth: 0, colatitude: math.Pi / 6},
		{name: "music forward up", algorithm: "MUSIC", azimuth: 0, colatitude: math.Pi / 3},
	}

	const tol = 3 * math.Pi / 180 // grid is ~1 degree

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			solver, err := New(tt.algorithm, cfg)
			require.NoError(t, err)

			frames := planeWaveFrames(t, cfg, tt.azimuth, tt.colatitude, 4)

			az, colat, err := solver.LocateSources(frames, [2]float64{0, 250})
			require.NoError(t, err)
			require.Len(t, az, 1)
			require.Len(t, colat, 1)

			assert.InDelta(t, tt.colatitude, colat[0], tol, "colatitude")
			// Azimuth is undefined near the pole; only check it when the
			// direction has a horizontal component.
			if math.Abs(math.Sin(tt.colatitude)) > 0.3 {
				assert.InDelta(t, tt.azimuth, az[0], tol, "azimuth")
			}
		})
	}
}

func TestCanonicalAngles(t *testing.T) {
	tests := []struct {
		name              string
		az, colat         float64
		wantAz, wantColat float64
	}{
		{name: "already canonical", az: 0, colat: math.Pi / 3, wantAz: 0, wantColat: math.Pi / 3},
		{name: "mirror of forward", az: -math.Pi, colat: -math.Pi / 3, wantAz: 0, wantColat: math.Pi / 3},
		{name: "mirror of backward", az: 0, colat: -math.Pi / 4, wantAz: -math.Pi, wantColat: math.Pi / 4},
		{name: "mirror positive azimuth", az: math.Pi / 2, colat: -math.Pi / 6, wantAz: -math.Pi / 2, wantColat: math.Pi / 6},
		{name: "pole", az: math.Pi / 2, colat: 0, wantAz: math.Pi / 2, wantColat: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			az, colat := canonicalAngles(tt.az, tt.colat)
			assert.InDelta(t, tt.wantAz, az, 1e-12)
			assert.InDelta(t, tt.wantColat, colat, 1e-12)
		})
	}
}

func TestLocateSources_CanonicalParametrization(t *testing.T) {
	// The search grid covers the upper hemisphere twice: (az, colat) and
	// (az+-pi, -colat) are the same direction. Whichever twin wins the
	// power tie, the reported pair must be the colat >= 0 one and still
	// point at the synthesized direction.
	tests := []struct {
		name       string
		algorithm  string
		azimuth    float64
		colatitude float64
	}{
		{name: "srp forward", algorithm: "SRP", azimuth: 0, colatitude: math.Pi / 3},
		{name: "srp backward", algorithm: "SRP", azimuth: math.Pi, colatitude: math.Pi / 4},
		{name: "music forward", algorithm: "MUSIC", azimuth: 0, colatitude: math.Pi / 6},
	}

	const tol = 3 * math.Pi / 180

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			solver, err := New(tt.algorithm, cfg)
			require.NoError(t, err)

			frames := planeWaveFrames(t, cfg, tt.azimuth, tt.colatitude, 4)

			az, colat, err := solver.LocateSources(frames, [2]float64{0, 250})
			require.NoError(t, err)
			require.Len(t, az, 1)
			require.Len(t, colat, 1)

			assert.GreaterOrEqual(t, colat[0], 0.0, "colatitude must be canonical")

			want := [3]float64{
				math.Cos(tt.azimuth) * math.Sin(tt.colatitude),
				math.Sin(tt.azimuth) * math.Sin(tt.colatitude),
				math.Cos(tt.colatitude),
			}
			got := [3]float64{
				math.Cos(az[0]) * math.Sin(colat[0]),
				math.Sin(az[0]) * math.Sin(colat[0]),
				math.Cos(colat[0]),
			}
			dot := want[0]*got[0] + want[1]*got[1] + want[2]*got[2]
			assert.Greater(t, dot, math.Cos(tol))
		})
	}
}

func TestLocateSources_TwoSourceCount(t *testing.T) {
	cfg := testConfig(2)
	solver, err := New("SRP", cfg)
	require.NoError(t, err)

	frames := planeWaveFrames(t, cfg, 0, math.Pi/3, 4)

	az, colat, err := solver.LocateSources(frames, [2]float64{0, 250})
	require.NoError(t, err)

	// One entry per requested source, even with a single physical source.
	assert.Len(t, az, 2)
	assert.Len(t, colat, 2)

	// Reported sources respect the minimum separation.
	d0 := [3]float64{
		math.Cos(az[0]) * math.Sin(colat[0]),
		math.Sin(az[0]) * math.Sin(colat[0]),
		math.Cos(colat[0]),
	}
	d1 := [3]float64{
		math.Cos(az[1]) * math.Sin(colat[1]),
		math.Sin(az[1]) * math.Sin(colat[1]),
		math.Cos(colat[1]),
	}
	dot := d0[0]*d1[0] + d0[1]*d1[1] + d0[2]*d1[2]
	assert.Less(t, dot, math.Cos(peakSeparation)+1e-9)
}

func TestLocateSources_ShapeErrors(t *testing.T) {
	cfg := testConfig(1)
	solver, err := New("SRP", cfg)
	require.NoError(t, err)

	good := planeWaveFrames(t, cfg, 0, math.Pi/3, 2)

	t.Run("wrong channel count", func(t *testing.T) {
		_, _, err := solver.LocateSources(good[:2], [2]float64{0, 250})
		assert.Error(t, err)
	})

	t.Run("uneven frame counts", func(t *testing.T) {
		bad := [][][]complex128{good[0], good[1], good[2][:1]}
		_, _, err := solver.LocateSources(bad, [2]float64{0, 250})
		assert.Error(t, err)
	})

	t.Run("empty frequency range", func(t *testing.T) {
		_, _, err := solver.LocateSources(good, [2]float64{0, 1})
		assert.Error(t, err)
	})

	t.Run("inverted frequency range", func(t *testing.T) {
		_, _, err := solver.LocateSources(good, [2]float64{250, 0})
		assert.Error(t, err)
	})
}
