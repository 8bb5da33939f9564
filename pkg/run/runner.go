package run

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tierup/pkg/browser"
	"tierup/pkg/config"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/report"
)

// ErrRunActive is returned when a run is already in flight in this process
// or another process holds the output directory.
var ErrRunActive = stderrors.New("a run is already active")

// lockFileName is the advisory lock guarding the output directory.
const lockFileName = ".tierup.lock"

// Runner enforces one run at a time and owns the active run's lifetime.
type Runner struct {
	cfg      *config.Config
	launcher browser.SessionLauncher
	logger   logger.Logger
	emitter  Emitter

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	lock   *flock.Flock
}

// NewRunner wires a runner. A nil emitter discards events.
func NewRunner(cfg *config.Config, launcher browser.SessionLauncher, log logger.Logger, emitter Emitter) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		cfg:      cfg,
		launcher: launcher,
		logger:   log,
		emitter:  emitter,
	}
}

// Run executes one run to completion and returns its summary. It refuses
// to start while another run is active, in this process or any other one
// sharing the output directory.
func (r *Runner) Run(ctx context.Context, mode Mode) (*report.Summary, error) {
	runCtx, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.release()

	runID := uuid.NewString()
	r.logger.InfoWithFields("Run starting", map[string]interface{}{
		"run_id": runID,
		"mode":   string(mode),
	})

	coordinator := NewCoordinator(r.cfg, r.launcher, r.logger, r.emitter)
	summary, err := coordinator.Execute(runCtx, mode, runID)

	fields := map[string]interface{}{
		"run_id": runID,
		"phase":  string(coordinator.Phase()),
	}
	if err != nil {
		fields["error"] = err.Error()
		r.logger.WarnWithFields("Run ended", fields)
	} else {
		r.logger.InfoWithFields("Run ended", fields)
	}
	return summary, err
}

// Cancel stops the active run. The run winds down at its next cancellation
// checkpoint and ends in the cancelled phase; completed work stands.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Active reports whether a run is in flight.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) acquire(ctx context.Context) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return nil, ErrRunActive
	}

	dir := r.cfg.Download.OutputDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeEnvironment, "failed to create output directory", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeEnvironment, "failed to lock output directory", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: output directory %s belongs to another process", ErrRunActive, dir)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.active = true
	r.cancel = cancel
	r.lock = lock
	return runCtx, nil
}

func (r *Runner) release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil {
			r.logger.DebugWithFields("Failed to release output directory lock", map[string]interface{}{
				"error": err.Error(),
			})
		}
		r.lock = nil
	}
	r.active = false
}
