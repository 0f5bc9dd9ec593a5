package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deferring/internal/relation"
)

func newTestObserver(t *testing.T) (*Observer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewObserver(reg), reg
}

func TestObserver_Reconciled(t *testing.T) {
	o, _ := newTestObserver(t)

	o.Reconciled("teams", 2, 1, 3*time.Millisecond)
	o.Reconciled("teams", 1, 0, time.Millisecond)
	o.Reconciled("tags", 0, 4, time.Millisecond)

	assert.Equal(t, 2.0, promtest.ToFloat64(o.reconciles.WithLabelValues("teams")))
	assert.Equal(t, 3.0, promtest.ToFloat64(o.links.WithLabelValues("teams")))
	assert.Equal(t, 1.0, promtest.ToFloat64(o.unlinks.WithLabelValues("teams")))
	assert.Equal(t, 4.0, promtest.ToFloat64(o.unlinks.WithLabelValues("tags")))
	assert.Equal(t, 2, promtest.CollectAndCount(o.reconciles))
}

func TestObserver_ReconcileFailed(t *testing.T) {
	o, _ := newTestObserver(t)

	o.ReconcileFailed("teams", relation.OpLink, time.Millisecond)
	o.ReconcileFailed("teams", relation.OpLink, time.Millisecond)
	o.ReconcileFailed("teams", relation.OpUnlink, time.Millisecond)

	assert.Equal(t, 2.0, promtest.ToFloat64(o.failures.WithLabelValues("teams", "link")))
	assert.Equal(t, 1.0, promtest.ToFloat64(o.failures.WithLabelValues("teams", "unlink")))
	assert.Equal(t, 0, promtest.CollectAndCount(o.reconciles))
}

func TestObserver_Loaded(t *testing.T) {
	o, _ := newTestObserver(t)

	o.Loaded("teams", 3)
	o.Loaded("teams", 0)

	assert.Equal(t, 2.0, promtest.ToFloat64(o.loads.WithLabelValues("teams")))
}

func TestNewObserver_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewObserver(reg)
	assert.Panics(t, func() { NewObserver(reg) })
}

func TestSummary(t *testing.T) {
	o, reg := newTestObserver(t)
	o.Loaded("teams", 2)
	o.Reconciled("teams", 2, 1, time.Millisecond)
	o.Reconciled("tags", 1, 0, time.Millisecond)
	o.ReconcileFailed("tags", relation.OpLink, time.Millisecond)

	// Foreign series are skipped.
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "other_total", Help: "x"})
	reg.MustRegister(other)
	other.Inc()

	samples, err := Summary(reg)
	require.NoError(t, err)

	got := make(map[string]float64, len(samples))
	for _, s := range samples {
		got[s.Name] = s.Value
	}
	assert.Equal(t, map[string]float64{
		"deferring_loaded_members":             1,
		"deferring_loads_total":                1,
		"deferring_reconcile_duration_seconds": 3,
		"deferring_reconcile_failures_total":   1,
		"deferring_reconciliations_total":      2,
		"deferring_links_written_total":        3,
		"deferring_unlinks_written_total":      1,
	}, got)
	for i := 1; i < len(samples); i++ {
		assert.Less(t, samples[i-1].Name, samples[i].Name)
	}
}
