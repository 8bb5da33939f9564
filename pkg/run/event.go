package run

import (
	"sync"
	"time"

	"tierup/pkg/logger"
)

// Counters is the running tally stamped on every event.
type Counters struct {
	Found            int `json:"found"`
	Downloaded       int `json:"downloaded"`
	DownloadFailed   int `json:"download_failed"`
	Skipped          int `json:"skipped"`
	Uploaded         int `json:"uploaded"`
	UploadFailed     int `json:"upload_failed"`
	ScrollIterations int `json:"scroll_iterations"`
}

// Event is one progress update from a run. Seq increases by one per event
// within a run, so consumers can detect gaps introduced by throttling.
type Event struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	RunID    string    `json:"run_id"`
	Phase    Phase     `json:"phase"`
	Counters Counters  `json:"counters"`
	Line     string    `json:"line,omitempty"`
}

// Emitter receives run events. Emit is called from the run goroutine and
// must not block.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// MultiEmitter fans one event out to several sinks, in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// ThrottledEmitter drops counter-only updates that arrive faster than the
// interval. Phase transitions and events carrying a log line always pass.
type ThrottledEmitter struct {
	next     Emitter
	interval time.Duration

	mu        sync.Mutex
	lastPhase Phase
	lastEmit  time.Time
}

// NewThrottledEmitter wraps next with a minimum interval between
// counter-only updates.
func NewThrottledEmitter(next Emitter, interval time.Duration) *ThrottledEmitter {
	return &ThrottledEmitter{next: next, interval: interval}
}

func (t *ThrottledEmitter) Emit(ev Event) {
	t.mu.Lock()
	pass := ev.Line != "" ||
		ev.Phase != t.lastPhase ||
		time.Since(t.lastEmit) >= t.interval
	if pass {
		t.lastPhase = ev.Phase
		t.lastEmit = time.Now()
	}
	t.mu.Unlock()

	if pass {
		t.next.Emit(ev)
	}
}

// NewLogEmitter writes run events through the logger: lines at info,
// counter updates at debug.
func NewLogEmitter(log logger.Logger) Emitter {
	if log == nil {
		log = logger.GetLogger()
	}
	return EmitterFunc(func(ev Event) {
		fields := map[string]interface{}{
			"run_id":     ev.RunID,
			"phase":      string(ev.Phase),
			"found":      ev.Counters.Found,
			"downloaded": ev.Counters.Downloaded,
			"uploaded":   ev.Counters.Uploaded,
		}
		if ev.Line != "" {
			log.InfoWithFields(ev.Line, fields)
			return
		}
		log.DebugWithFields("Run progress", fields)
	})
}
