package hoststate

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// testLatencyConfig returns a config with a short warm-up so tests do not
// have to loop fifty times to reach a defined average.
func testLatencyConfig() LatencyConfig {
	return LatencyConfig{
		WarmupSamples: 3,
		Scale:         100 * time.Millisecond,
	}
}

// TestLatencyWarmup checks that the average stays undefined until the warm-up
// sample count is exceeded, and that the first sample past warm-up becomes
// the average verbatim.
func TestLatencyWarmup(t *testing.T) {
	t.Parallel()

	testTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewTestClock(testTime)

	cfg := testLatencyConfig()
	tracker := NewLatencyTracker(cfg, clk)

	require.Equal(t, UndefinedAverage, tracker.CurrentAverage().Average)

	// The warm-up samples are counted but do not define an average.
	for i := uint64(0); i < cfg.WarmupSamples; i++ {
		clk.SetTime(testTime.Add(time.Duration(i+1) * time.Second))
		tracker.Update(5 * time.Millisecond)

		avg := tracker.CurrentAverage()
		require.Equal(t, UndefinedAverage, avg.Average)
		require.Equal(t, i+1, avg.NumMeasured)
	}

	// The next sample becomes the average as-is.
	clk.SetTime(testTime.Add(time.Hour))
	tracker.Update(7 * time.Millisecond)

	avg := tracker.CurrentAverage()
	require.Equal(t, int64(7*time.Millisecond), avg.Average)
	require.Equal(t, cfg.WarmupSamples+1, avg.NumMeasured)
	require.Equal(t, testTime.Add(time.Hour), avg.Timestamp)
}

// TestLatencyDecay checks that a new sample pulls the average toward itself,
// and that the pull is stronger the longer the gap since the previous sample.
func TestLatencyDecay(t *testing.T) {
	t.Parallel()

	testTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// seed returns a warmed-up tracker whose average is exactly 10ms.
	seed := func(clk *clock.TestClock) *LatencyTracker {
		cfg := testLatencyConfig()
		tracker := NewLatencyTracker(cfg, clk)

		for i := uint64(0); i <= cfg.WarmupSamples; i++ {
			clk.SetTime(testTime.Add(time.Duration(i) * time.Second))
			tracker.Update(10 * time.Millisecond)
		}
		require.Equal(
			t, int64(10*time.Millisecond),
			tracker.CurrentAverage().Average,
		)

		return tracker
	}

	base := testTime.Add(
		time.Duration(testLatencyConfig().WarmupSamples) * time.Second,
	)

	// A slower sample after a short gap moves the average up, but keeps
	// it between the old average and the sample.
	shortClk := clock.NewTestClock(testTime)
	short := seed(shortClk)
	shortClk.SetTime(base.Add(10 * time.Millisecond))
	short.Update(50 * time.Millisecond)

	shortAvg := short.CurrentAverage().Average
	require.Greater(t, shortAvg, int64(10*time.Millisecond))
	require.Less(t, shortAvg, int64(50*time.Millisecond))

	// The same sample after a much longer gap discounts the old average
	// more heavily, landing closer to the new sample.
	longClk := clock.NewTestClock(testTime)
	long := seed(longClk)
	longClk.SetTime(base.Add(10 * time.Second))
	long.Update(50 * time.Millisecond)

	longAvg := long.CurrentAverage().Average
	require.Greater(t, longAvg, shortAvg)
	require.Less(t, longAvg, int64(50*time.Millisecond))
}

// TestLatencyClockAnomaly checks that a sample arriving at or before the
// previous sample's timestamp is discarded without touching the tracker
// state.
func TestLatencyClockAnomaly(t *testing.T) {
	t.Parallel()

	testTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewTestClock(testTime)

	cfg := testLatencyConfig()
	tracker := NewLatencyTracker(cfg, clk)

	for i := uint64(0); i <= cfg.WarmupSamples; i++ {
		clk.SetTime(testTime.Add(time.Duration(i) * time.Second))
		tracker.Update(10 * time.Millisecond)
	}
	before := tracker.CurrentAverage()

	// Same instant as the previous sample.
	tracker.Update(90 * time.Millisecond)
	require.Equal(t, before, tracker.CurrentAverage())

	// Clock stepped backwards.
	clk.SetTime(testTime)
	tracker.Update(90 * time.Millisecond)
	require.Equal(t, before, tracker.CurrentAverage())
}

// TestLatencyDefaults checks the production defaults.
func TestLatencyDefaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultLatencyConfig()
	require.Equal(t, uint64(DefaultWarmupSamples), cfg.WarmupSamples)
	require.Equal(t, DefaultLatencyScale, cfg.Scale)
}
