package search

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qpoint/internal/stats"
)

// stepRun builds a run function that is acceptable at rates up to
// threshold and unacceptable above it, recording every tested rate.
func stepRun(threshold int, tested *[]int) RunFunc {
	return func(qps int) (*stats.RunStats, error) {
		*tested = append(*tested, qps)

		rs := stats.NewRunStats()
		if qps <= threshold {
			rs.Record("200", 100*time.Millisecond)
		} else {
			rs.Record("500", 900*time.Millisecond)
		}
		rs.Finalize()
		return rs, nil
	}
}

func testConfig(maxQPS int) Config {
	return Config{MaxQPS: maxQPS, MaxErrorRate: 0.01, MaxLatency: 0.5}
}

func TestFindLocatesThreshold(t *testing.T) {
	vars := []struct {
		name      string
		threshold int
		maxQPS    int
		best      int
		verdict   Verdict
	}{
		{"Bottom", 1, 100, 1, VerdictFound},
		{"Low", 7, 100, 7, VerdictFound},
		{"Middle", 50, 100, 50, VerdictFound},
		{"AllUnacceptable", 0, 100, 0, VerdictNoneAcceptable},
		{"AllAcceptable", 100, 100, 100, VerdictCeiling},
		{"RangeOfOne", 1, 1, 1, VerdictCeiling},
	}

	for _, v := range vars {
		t.Run(v.name, func(t *testing.T) {
			var tested []int
			f := NewFinder(testConfig(v.maxQPS), stepRun(v.threshold, &tested))

			res, err := f.Find()
			require.NoError(t, err)

			assert.Equal(t, v.best, res.BestQPS)
			assert.Equal(t, v.verdict, res.Verdict)
			// ceil(log2(100)) == 7
			assert.LessOrEqual(t, res.Probes, 8)

			if v.best > 0 {
				require.NotNil(t, res.FinalStats)
				// The confirmation run is the last one executed, at
				// the chosen rate.
				assert.Equal(t, v.best, tested[len(tested)-1])
				assert.Zero(t, res.FinalStats.Summary().TotalErrors)
			} else {
				assert.Nil(t, res.FinalStats)
			}
		})
	}
}

func TestFindBreakingPointAt91(t *testing.T) {
	var tested []int
	f := NewFinder(testConfig(100), stepRun(91, &tested))

	res, err := f.Find()
	require.NoError(t, err)

	assert.Equal(t, 91, res.BestQPS)
	assert.Equal(t, VerdictFound, res.Verdict)
	assert.Equal(t, 6, res.Probes)
	// Exact bisection trace over [1,100], confirmation run last.
	assert.Equal(t, []int{50, 75, 88, 94, 91, 92, 91}, tested)
}

func TestFindReportsProbes(t *testing.T) {
	var tested []int
	f := NewFinder(testConfig(100), stepRun(50, &tested))

	var observed []int
	f.OnProbe = func(qps int, sum stats.Summary) {
		observed = append(observed, qps)
	}

	res, err := f.Find()
	require.NoError(t, err)

	// OnProbe sees every probe but not the confirmation run.
	assert.Equal(t, res.Probes, len(observed))
	assert.Equal(t, tested[:len(tested)-1], observed)
}

func TestFindAcceptsAtExactThresholds(t *testing.T) {
	// Boundary values are acceptable: <=, not <.
	run := func(qps int) (*stats.RunStats, error) {
		rs := stats.NewRunStats()
		rs.Record("200", 500*time.Millisecond)
		rs.Record("200", 500*time.Millisecond)
		rs.Finalize()
		return rs, nil
	}

	f := NewFinder(Config{MaxQPS: 10, MaxErrorRate: 0, MaxLatency: 0.5}, run)
	res, err := f.Find()
	require.NoError(t, err)

	assert.Equal(t, 10, res.BestQPS)
	assert.Equal(t, VerdictCeiling, res.Verdict)
}

func TestFindAllRequestsFailing(t *testing.T) {
	// A run where every request fails is a result, not an error: the
	// search just moves downward.
	run := func(qps int) (*stats.RunStats, error) {
		rs := stats.NewRunStats()
		rs.Record(stats.ClassificationError, time.Second)
		rs.Finalize()
		return rs, nil
	}

	f := NewFinder(testConfig(100), run)
	res, err := f.Find()
	require.NoError(t, err)

	assert.Equal(t, 0, res.BestQPS)
	assert.Equal(t, VerdictNoneAcceptable, res.Verdict)
}

func TestFindInvalidRange(t *testing.T) {
	f := NewFinder(testConfig(0), stepRun(1, &[]int{}))

	_, err := f.Find()
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestFindPropagatesRunError(t *testing.T) {
	boom := errors.New("boom")
	f := NewFinder(testConfig(100), func(qps int) (*stats.RunStats, error) {
		return nil, boom
	})

	_, err := f.Find()
	assert.ErrorIs(t, err, boom)
}
