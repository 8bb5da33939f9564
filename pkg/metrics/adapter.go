package metrics

import (
	"sync"

	"tierup/pkg/run"
)

// EmitterAdapter feeds run events into the collectors. Events carry
// cumulative counters, so the adapter diffs against the previous event and
// adds the deltas; a new run ID resets the baseline.
type EmitterAdapter struct {
	metrics *Metrics

	mu    sync.Mutex
	runID string
	last  run.Counters
}

// NewEmitterAdapter wraps the metrics for use as a run emitter.
func NewEmitterAdapter(m *Metrics) *EmitterAdapter {
	return &EmitterAdapter{metrics: m}
}

func (a *EmitterAdapter) Emit(ev run.Event) {
	if a == nil || a.metrics == nil {
		return
	}

	a.mu.Lock()
	if ev.RunID != a.runID {
		a.runID = ev.RunID
		a.last = run.Counters{}
	}
	delta := diff(ev.Counters, a.last)
	a.last = ev.Counters
	a.mu.Unlock()

	a.metrics.AddFound(delta.Found)
	a.metrics.AddDownloads("success", delta.Downloaded)
	a.metrics.AddDownloads("failure", delta.DownloadFailed)
	a.metrics.AddUploads("success", delta.Uploaded)
	a.metrics.AddUploads("failure", delta.UploadFailed)
	a.metrics.AddScrolls(delta.ScrollIterations)
	a.metrics.SetPhase(ev.Phase)
}

func diff(now, prev run.Counters) run.Counters {
	return run.Counters{
		Found:            now.Found - prev.Found,
		Downloaded:       now.Downloaded - prev.Downloaded,
		DownloadFailed:   now.DownloadFailed - prev.DownloadFailed,
		Uploaded:         now.Uploaded - prev.Uploaded,
		UploadFailed:     now.UploadFailed - prev.UploadFailed,
		ScrollIterations: now.ScrollIterations - prev.ScrollIterations,
	}
}
