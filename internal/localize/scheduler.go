package localize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/geometry"
)

// Region selects which part of the enclosure a cycle is localized against.
// It is an explicit parameter everywhere; nothing mutates it mid-run.
type Region int

const (
	// RegionS1 covers the upper region (where M and T are located).
	RegionS1 Region = iota
	// RegionS2 covers the lower region (where P and A are located).
	RegionS2
)

func (r Region) String() string {
	switch r {
	case RegionS1:
		return "S1"
	case RegionS2:
		return "S2"
	default:
		return fmt.Sprintf("Region(%d)", int(r))
	}
}

// Pool returns the microphone identifiers searched for this region.
func (r Region) Pool() []string {
	switch r {
	case RegionS2:
		return micNames(1, 2, 5, 6, 9, 10)
	default:
		return micNames(2, 3, 6, 7, 10, 11)
	}
}

// RegionForSource maps a logical source name to its region.
func RegionForSource(source string) Region {
	if source == "S2" {
		return RegionS2
	}
	return RegionS1
}

func micNames(ids ...int) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = fmt.Sprintf("mic%d", id)
	}
	return names
}

// combinations enumerates all unordered subsets of size k in lexicographic
// order over the input slice.
func combinations(pool []string, k int) [][]string {
	if k <= 0 || k > len(pool) {
		return nil
	}

	var out [][]string
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		subset := make([]string, k)
		for i, j := range idx {
			subset[i] = pool[j]
		}
		out = append(out, subset)

		// Advance the rightmost index that can still move.
		i := k - 1
		for i >= 0 && idx[i] == len(pool)-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// SchedulerConfig configures cycle processing.
type SchedulerConfig struct {
	// CombinationSize is the number of microphones per subset.
	CombinationSize int
	// Workers bounds the per-round fan-out. The last round may run fewer
	// workers when the subset count is not a multiple.
	Workers int
	// SkipFailedSubsets collects partial output instead of failing the
	// cycle on the first subset error.
	SkipFailedSubsets bool
}

// Scheduler enumerates microphone subsets for a region, fans the estimate
// generator out over them in bounded rounds, and aggregates the results
// into room coordinates.
type Scheduler struct {
	gen    *Generator
	cfg    SchedulerConfig
	logger *slog.Logger

	skipped atomic.Int64
}

// NewScheduler creates a scheduler around a generator.
func NewScheduler(gen *Generator, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if gen == nil {
		return nil, errdefs.Validationf("scheduler: generator is required")
	}
	if cfg.CombinationSize < 2 {
		return nil, errdefs.Validationf("scheduler: combination size must be >= 2: %d", cfg.CombinationSize)
	}
	if cfg.Workers < 1 {
		return nil, errdefs.Validationf("scheduler: workers must be >= 1: %d", cfg.Workers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{gen: gen, cfg: cfg, logger: logger}, nil
}

type subsetResult struct {
	index  int
	points *mat.Dense
	err    error
}

// ProcessCycle produces the candidate cloud for one recorded cycle: every
// subset's points, flattened in subset order and translated by the room
// center. Output order is deterministic for identical inputs regardless of
// which worker finishes first.
func (s *Scheduler) ProcessCycle(ctx context.Context, matrix [][]float64, region Region) (*mat.Dense, error) {
	pool := region.Pool()
	subsets := combinations(pool, s.cfg.CombinationSize)
	if len(subsets) == 0 {
		return nil, errdefs.Validationf(
			"scheduler: pool of %d microphones yields no subsets of size %d",
			len(pool), s.cfg.CombinationSize)
	}

	s.logger.Debug("processing cycle",
		"region", region.String(),
		"subsets", len(subsets),
		"workers", s.cfg.Workers,
	)

	results := make([]subsetResult, len(subsets))

	for start := 0; start < len(subsets); start += s.cfg.Workers {
		end := start + s.cfg.Workers
		if end > len(subsets) {
			end = len(subsets)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				points, err := s.gen.GenerateEstimates(ctx, matrix, subsets[i])
				results[i] = subsetResult{index: i, points: points, err: err}
			}(i)
		}
		// Join the whole round before dispatching the next one.
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	kept := make([]*mat.Dense, 0, len(subsets))
	for _, res := range results {
		if res.err != nil {
			if s.cfg.SkipFailedSubsets {
				s.skipped.Add(1)
				s.logger.Warn("skipping failed subset",
					"subset", subsets[res.index],
					"error", res.err,
				)
				continue
			}
			return nil, fmt.Errorf("subset %v: %w", subsets[res.index], res.err)
		}
		kept = append(kept, res.points)
	}
	if len(kept) == 0 {
		return nil, errdefs.Validationf("scheduler: every subset failed")
	}

	rows := 0
	for _, p := range kept {
		r, _ := p.Dims()
		rows += r
	}

	center := geometry.RoomCenter()
	out := mat.NewDense(rows, 3, nil)
	row := 0
	for _, p := range kept {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			// Subset-local candidates become room-global here.
			out.Set(row, 0, p.At(i, 0)+center[0])
			out.Set(row, 1, p.At(i, 1)+center[1])
			out.Set(row, 2, p.At(i, 2)+center[2])
			row++
		}
	}
	return out, nil
}

// SkippedSubsets returns how many subsets have been dropped under the
// partial-collection policy since creation.
func (s *Scheduler) SkippedSubsets() int64 {
	return s.skipped.Load()
}
