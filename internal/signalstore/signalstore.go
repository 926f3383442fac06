// Package signalstore maps logical source/cycle names to recorded signal
// matrices and associates matrix rows with microphones. The backing store is
// a directory of raw float64 matrix files, one per cycle.
package signalstore

import (
	"fmt"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/geometry"
)

// CycleCount is the number of recorded cycles per source.
const CycleCount = 24

// Sources lists the valid logical source names.
var Sources = []string{"S1", "S2"}

// Key identifies one recorded cycle in the store.
type Key struct {
	Source    string
	Cycle     int
	Recovered bool
}

// Name returns the logical cycle name, e.g. "S1_Cycle0".
func (k Key) Name() string {
	return fmt.Sprintf("%s_Cycle%d", k.Source, k.Cycle)
}

// Path returns the store-relative path for this key, without extension.
// Recovered cycles live under a Recovered_ prefix directory.
func (k Key) Path() string {
	dir := k.Source
	if k.Recovered {
		dir = "Recovered_" + k.Source
	}
	return fmt.Sprintf("%s/%s", dir, k.Name())
}

// ResolveKey validates a source name and cycle index and builds the store
// key. Anything outside {S1,S2} x {0..23} is a NotFoundError.
func ResolveKey(source string, cycle int, recovered bool) (Key, error) {
	valid := false
	for _, s := range Sources {
		if s == source {
			valid = true
			break
		}
	}
	if !valid {
		return Key{}, errdefs.NotFound(fmt.Sprintf("source %q", source))
	}
	if cycle < 0 || cycle >= CycleCount {
		return Key{}, errdefs.NotFound(fmt.Sprintf("%s cycle %d", source, cycle))
	}
	return Key{Source: source, Cycle: cycle, Recovered: recovered}, nil
}

// Store retrieves raw signal matrices by key. Implementations own the
// format and location; callers treat it as an opaque lookup.
type Store interface {
	// LoadMatrix returns the recorded matrix for key, one row per channel.
	LoadMatrix(key Key) ([][]float64, error)
}

// MatchMicrophones selects the signal rows and microphone locations for the
// requested microphone names ("mic1".."mic12"), preserving request order.
func MatchMicrophones(matrix [][]float64, names []string) ([][]float64, []geometry.Point, error) {
	if len(matrix) == 0 {
		return nil, nil, errdefs.Validationf("match: signal matrix is empty")
	}
	for i, row := range matrix {
		if row == nil {
			return nil, nil, errdefs.Validationf("match: signal row %d is nil", i)
		}
		if len(row) == 0 {
			return nil, nil, errdefs.Validationf("match: signal row %d is empty", i)
		}
	}
	if len(names) == 0 {
		return nil, nil, errdefs.Validationf("match: microphone list is empty")
	}

	layout := geometry.MicrophoneLayout()
	if len(matrix) != len(layout) {
		return nil, nil, errdefs.Validationf(
			"match: signal matrix has %d channels, microphone layout has %d",
			len(matrix), len(layout))
	}

	// mic1 maps to channel 0.
	index := make(map[string]int, len(layout))
	for i := range layout {
		index[fmt.Sprintf("mic%d", i+1)] = i
	}

	signals := make([][]float64, 0, len(names))
	locations := make([]geometry.Point, 0, len(names))
	for _, name := range names {
		i, ok := index[name]
		if !ok {
			return nil, nil, errdefs.Validationf("match: unknown microphone %q", name)
		}
		signals = append(signals, matrix[i])
		locations = append(locations, layout[i])
	}
	return signals, locations, nil
}
