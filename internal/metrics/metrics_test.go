package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

func TestObserveRun(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	before := testutil.ToFloat64(OptimizerChains.WithLabelValues("test"))
	ObserveRun("test", opt.Metrics{Chains: 12, Improvements: 3, DurationMs: 1500, StopReason: opt.StopConverged})
	assert.Equal(t, before+12, testutil.ToFloat64(OptimizerChains.WithLabelValues("test")))
	assert.Equal(t, 3.0, testutil.ToFloat64(OptimizerImprovements.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OptimizerRuns.WithLabelValues("test", opt.StopConverged)))
}
