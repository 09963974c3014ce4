package hoststate

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/cqlkit/hoststate/multimutex"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultWarmupSamples is the default number of latency samples that
	// must be recorded before the tracker reports a defined average.
	DefaultWarmupSamples = 50

	// DefaultLatencyScale is the default time constant of the decay
	// weight applied to the previous average.
	DefaultLatencyScale = 100 * time.Millisecond

	// UndefinedAverage is the average reported while the tracker is still
	// warming up. It distinguishes "no data yet" from a genuine zero
	// latency.
	UndefinedAverage int64 = -1

	// trackerPoolSize is the number of mutexes shared by all latency
	// trackers in the process.
	trackerPoolSize = 64
)

// trackerPool guards latency tracker state. Latency updates are extremely
// frequent and short, so trackers draw their locks from a small fixed pool
// keyed by tracker identity rather than carrying a mutex each. Lock memory
// stays bounded no matter how many hosts the cluster has, and two trackers
// sharing a slot only ever contend for the length of one update.
var trackerPool = multimutex.NewMutexPool(trackerPoolSize)

// trackerIDs allocates pool identities for new trackers.
var trackerIDs atomic.Uint64

// LatencyConfig holds the tunables of a latency tracker.
type LatencyConfig struct {
	// WarmupSamples is the number of samples to record before the average
	// becomes defined.
	WarmupSamples uint64

	// Scale is the time constant used to weigh the previous average
	// against a new sample: the longer the gap between samples relative
	// to Scale, the less the old average contributes.
	Scale time.Duration
}

// DefaultLatencyConfig returns the latency tracker defaults.
func DefaultLatencyConfig() LatencyConfig {
	return LatencyConfig{
		WarmupSamples: DefaultWarmupSamples,
		Scale:         DefaultLatencyScale,
	}
}

// TimestampedAverage is the state of a latency tracker at a point in time.
type TimestampedAverage struct {
	// Average is the decayed running average in nanoseconds, or
	// UndefinedAverage while fewer than WarmupSamples samples have been
	// recorded.
	Average int64

	// Timestamp is the time the last accounted sample was recorded.
	Timestamp time.Time

	// NumMeasured is the total number of samples recorded, including the
	// warm-up samples that did not contribute to the average.
	NumMeasured uint64
}

// LatencyTracker maintains a time-decayed running average of observed
// round-trip latencies for one host. The decay rate adapts to the actual gap
// between samples rather than a fixed sample count, so sparse and dense
// sampling both converge sensibly.
//
// Update and CurrentAverage are safe for concurrent use by many callers.
type LatencyTracker struct {
	// id selects this tracker's slot in the shared mutex pool.
	id uint64

	cfg LatencyConfig
	clk clock.Clock

	// current is the tracker state, guarded by the pool mutex for id.
	current TimestampedAverage
}

// NewLatencyTracker creates a latency tracker with the given config, reading
// time from clk.
func NewLatencyTracker(cfg LatencyConfig, clk clock.Clock) *LatencyTracker {
	return &LatencyTracker{
		id:  trackerIDs.Add(1),
		cfg: cfg,
		clk: clk,
		current: TimestampedAverage{
			Average: UndefinedAverage,
		},
	}
}

// Update records one observed latency sample.
func (t *LatencyTracker) Update(latency time.Duration) {
	now := t.clk.Now()

	trackerPool.Lock(t.id)
	defer trackerPool.Unlock(t.id)

	previous := t.current

	switch {
	// While warming up the average stays undefined: a handful of early
	// samples, typically taken while connections are still settling, is
	// not representative of the host.
	case previous.NumMeasured < t.cfg.WarmupSamples:
		t.current.Average = UndefinedAverage

	// The first sample after warm-up becomes the average verbatim.
	case previous.Average < 0:
		t.current.Average = int64(latency)

	default:
		delay := now.Sub(previous.Timestamp)

		// A non-positive delay means the clock misbehaved or two
		// samples raced to the same instant. Discard the sample
		// rather than feed a zero or negative gap into the decay
		// term.
		if delay <= 0 {
			return
		}

		scaled := float64(delay) / float64(t.cfg.Scale)
		weight := math.Log(scaled+1) / scaled
		t.current.Average = int64(
			(1-weight)*float64(latency) +
				weight*float64(previous.Average),
		)
	}

	t.current.NumMeasured = previous.NumMeasured + 1
	t.current.Timestamp = now
}

// CurrentAverage returns the tracker state as of the last recorded sample.
func (t *LatencyTracker) CurrentAverage() TimestampedAverage {
	trackerPool.Lock(t.id)
	defer trackerPool.Unlock(t.id)

	return t.current
}
