package localize

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/signalstore"
)

// CycleEstimate is the candidate cloud for one processed cycle.
type CycleEstimate struct {
	Name   string
	Source string
	Cycle  int
	Region Region
	Points *mat.Dense
}

// PointCount returns the number of candidate points.
func (c CycleEstimate) PointCount() int {
	if c.Points == nil {
		return 0
	}
	r, _ := c.Points.Dims()
	return r
}

// Pipeline drives cycle processing over the signal store and fans results
// out to subscribers.
type Pipeline struct {
	store     signalstore.Store
	sched     *Scheduler
	recovered bool
	logger    *slog.Logger

	mu           sync.RWMutex
	cycleCount   int64
	errorCount   int64
	pointsTotal  int64
	totalCycleMs int64
	lastCycle    string

	subsMu sync.RWMutex
	subs   map[chan CycleEstimate]struct{}
}

// NewPipeline creates a pipeline over a store and a scheduler.
func NewPipeline(store signalstore.Store, sched *Scheduler, recovered bool, logger *slog.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, errdefs.Validationf("pipeline: store is required")
	}
	if sched == nil {
		return nil, errdefs.Validationf("pipeline: scheduler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		sched:     sched,
		recovered: recovered,
		logger:    logger,
		subs:      make(map[chan CycleEstimate]struct{}),
	}, nil
}

// ProcessSource localizes one recorded cycle of the named source: resolve
// the key, load the matrix, and process it against the source's region.
func (p *Pipeline) ProcessSource(ctx context.Context, source string, cycle int) (CycleEstimate, error) {
	key, err := signalstore.ResolveKey(source, cycle, p.recovered)
	if err != nil {
		p.recordError()
		return CycleEstimate{}, err
	}

	start := time.Now()

	matrix, err := p.store.LoadMatrix(key)
	if err != nil {
		p.recordError()
		return CycleEstimate{}, err
	}

	region := RegionForSource(source)
	points, err := p.sched.ProcessCycle(ctx, matrix, region)
	if err != nil {
		p.recordError()
		return CycleEstimate{}, err
	}

	est := CycleEstimate{
		Name:   key.Name(),
		Source: source,
		Cycle:  cycle,
		Region: region,
		Points: points,
	}

	elapsed := time.Since(start)
	p.recordCycle(est, elapsed)
	p.notifySubscribers(est)

	p.logger.Info("cycle processed",
		"cycle", est.Name,
		"region", region.String(),
		"points", est.PointCount(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return est, nil
}

// PotentialSources returns a lazy sequence over every (source, cycle)
// pair: S1 cycles 0..23, then S2 cycles 0..23, each paired with its region.
// Every call restarts from the beginning. Iteration stops early when the
// consumer breaks or the context is cancelled; errors are yielded alongside
// a zero estimate and do not end the sequence on their own.
func (p *Pipeline) PotentialSources(ctx context.Context) iter.Seq2[CycleEstimate, error] {
	return func(yield func(CycleEstimate, error) bool) {
		for _, source := range signalstore.Sources {
			for cycle := 0; cycle < signalstore.CycleCount; cycle++ {
				if err := ctx.Err(); err != nil {
					yield(CycleEstimate{}, err)
					return
				}
				est, err := p.ProcessSource(ctx, source, cycle)
				if !yield(est, err) {
					return
				}
			}
		}
	}
}

// Run processes every cycle eagerly and returns the first error, or nil.
// Results reach consumers through the subscriber channels.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, err := range p.PotentialSources(ctx) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Subscribe returns a channel receiving every processed cycle estimate.
// Slow subscribers miss estimates rather than stalling the pipeline.
func (p *Pipeline) Subscribe() chan CycleEstimate {
	ch := make(chan CycleEstimate, 4)

	p.subsMu.Lock()
	p.subs[ch] = struct{}{}
	p.subsMu.Unlock()

	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (p *Pipeline) Unsubscribe(ch chan CycleEstimate) {
	p.subsMu.Lock()
	if _, exists := p.subs[ch]; exists {
		delete(p.subs, ch)
		close(ch)
	}
	p.subsMu.Unlock()
}

func (p *Pipeline) notifySubscribers(est CycleEstimate) {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()

	for ch := range p.subs {
		select {
		case ch <- est:
		default:
			// Drop if subscriber is slow
		}
	}
}

func (p *Pipeline) recordCycle(est CycleEstimate, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycleCount++
	p.pointsTotal += int64(est.PointCount())
	p.totalCycleMs += elapsed.Milliseconds()
	p.lastCycle = est.Name
}

func (p *Pipeline) recordError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorCount++
}

// Stats contains pipeline counters for the stats and metrics surfaces.
type Stats struct {
	CyclesProcessed int64   `json:"cycles_processed"`
	CycleErrors     int64   `json:"cycle_errors"`
	PointsTotal     int64   `json:"points_total"`
	AvgCycleMs      float64 `json:"avg_cycle_ms"`
	LastCycle       string  `json:"last_cycle"`
	SkippedSubsets  int64   `json:"skipped_subsets"`
	SubscriberCount int     `json:"subscriber_count"`
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	avg := float64(0)
	if p.cycleCount > 0 {
		avg = float64(p.totalCycleMs) / float64(p.cycleCount)
	}

	p.subsMu.RLock()
	subscribers := len(p.subs)
	p.subsMu.RUnlock()

	return Stats{
		CyclesProcessed: p.cycleCount,
		CycleErrors:     p.errorCount,
		PointsTotal:     p.pointsTotal,
		AvgCycleMs:      avg,
		LastCycle:       p.lastCycle,
		SkippedSubsets:  p.sched.SkippedSubsets(),
		SubscriberCount: subscribers,
	}
}

// Close closes all subscriber channels.
func (p *Pipeline) Close() {
	p.subsMu.Lock()
	for ch := range p.subs {
		close(ch)
		delete(p.subs, ch)
	}
	p.subsMu.Unlock()
}
