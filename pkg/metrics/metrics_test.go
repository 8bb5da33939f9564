package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierup/pkg/run"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddFound(3)
	m.AddDownloads("success", 1)
	m.AddUploads("failure", 1)
	m.AddScrolls(2)
	m.SetPhase(run.PhaseScraping)

	shutdown := m.Serve(":0", nil)
	require.NotNil(t, shutdown)
}

func TestCountersAndGauge(t *testing.T) {
	m := New()

	m.AddFound(12)
	m.AddFound(0)
	m.AddFound(-4)
	m.AddDownloads("success", 10)
	m.AddDownloads("failure", 2)
	m.AddUploads("success", 9)
	m.AddScrolls(7)
	m.SetPhase(run.PhaseUploading)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.ImagesFound))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.Downloads.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Downloads.WithLabelValues("failure")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.Uploads.WithLabelValues("success")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ScrollIterations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunPhase))

	m.SetPhase(run.PhaseDone)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RunPhase))
}

func TestEmitterAdapterDiffsCumulativeCounters(t *testing.T) {
	m := New()
	adapter := NewEmitterAdapter(m)

	adapter.Emit(run.Event{
		RunID: "run-1",
		Phase: run.PhaseScraping,
		Counters: run.Counters{
			Found:            5,
			Downloaded:       2,
			ScrollIterations: 3,
		},
	})
	adapter.Emit(run.Event{
		RunID: "run-1",
		Phase: run.PhaseScraping,
		Counters: run.Counters{
			Found:            5,
			Downloaded:       4,
			DownloadFailed:   1,
			ScrollIterations: 3,
		},
	})
	adapter.Emit(run.Event{
		RunID: "run-1",
		Phase: run.PhaseUploading,
		Counters: run.Counters{
			Found:            5,
			Downloaded:       4,
			DownloadFailed:   1,
			Uploaded:         4,
			ScrollIterations: 3,
		},
	})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.ImagesFound), "snapshots must not double count")
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Downloads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads.WithLabelValues("failure")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Uploads.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ScrollIterations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunPhase))
}

func TestEmitterAdapterResetsPerRun(t *testing.T) {
	m := New()
	adapter := NewEmitterAdapter(m)

	adapter.Emit(run.Event{
		RunID:    "run-1",
		Phase:    run.PhaseDone,
		Counters: run.Counters{Found: 3, Downloaded: 3},
	})
	adapter.Emit(run.Event{
		RunID:    "run-2",
		Phase:    run.PhaseScraping,
		Counters: run.Counters{Found: 2, Downloaded: 1},
	})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.ImagesFound), "a new run adds from a fresh baseline")
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Downloads.WithLabelValues("success")))
}
