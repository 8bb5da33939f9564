package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tierup/internal/downloader"
	"tierup/pkg/browser"
	"tierup/pkg/collect"
	"tierup/pkg/config"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/models"
	"tierup/pkg/publish"
	"tierup/pkg/report"
	"tierup/pkg/storage"
)

// Mode selects how much of the pipeline a run executes.
type Mode string

const (
	// ModeFull collects the library and publishes the result.
	ModeFull Mode = "run"
	// ModeCollect stops after the covers are on disk.
	ModeCollect Mode = "collect"
	// ModePublish uploads a previous run's covers without collecting.
	ModePublish Mode = "publish"
)

// Coordinator executes one run at a time: it owns the phase machine,
// translates collect and publish progress into events, and decides what
// happens to the browser window when the run ends.
type Coordinator struct {
	cfg      *config.Config
	launcher browser.SessionLauncher
	logger   logger.Logger
	emitter  Emitter

	mu       sync.Mutex
	runID    string
	phase    Phase
	seq      uint64
	counters Counters
}

// NewCoordinator wires a coordinator. A nil emitter discards events.
func NewCoordinator(cfg *config.Config, launcher browser.SessionLauncher, log logger.Logger, emitter Emitter) *Coordinator {
	if log == nil {
		log = logger.GetLogger()
	}
	if emitter == nil {
		emitter = EmitterFunc(func(Event) {})
	}
	return &Coordinator{
		cfg:      cfg,
		launcher: launcher,
		logger:   log,
		emitter:  emitter,
		phase:    PhaseIdle,
	}
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Execute runs the pipeline for the given mode. The returned summary is
// valid even when err is non-nil; it records whatever happened before the
// failure.
func (c *Coordinator) Execute(ctx context.Context, mode Mode, runID string) (*report.Summary, error) {
	c.mu.Lock()
	c.runID = runID
	c.phase = PhaseIdle
	c.seq = 0
	c.counters = Counters{}
	c.mu.Unlock()

	summary := &report.Summary{RunID: runID, LibraryURL: c.cfg.Library.URL}

	if mode == ModePublish {
		return c.executePublish(ctx, summary)
	}
	return c.executeCollect(ctx, mode, summary)
}

func (c *Coordinator) executeCollect(ctx context.Context, mode Mode, summary *report.Summary) (*report.Summary, error) {
	store, err := storage.NewManager(c.cfg.Download.OutputDir)
	if err != nil {
		return c.finish(summary, err)
	}
	fetcher := downloader.NewHTTPFetcher(c.cfg.Download.Timeout.Dur(), c.cfg.Browser.UserAgent, c.logger)
	fetcher.SetHeader("Referer", c.cfg.Library.URL)

	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return c.finish(summary, errors.Wrap(errors.ErrorTypeEnvironment, "failed to launch browser", err))
	}
	detach := false
	defer func() { c.releaseSession(session, detach) }()

	c.setPhase(PhaseScraping, fmt.Sprintf("Collecting covers from %s", c.cfg.Library.URL))

	collector := collect.New(c.cfg, session, fetcher, store, c.logger)
	collector.SetProgress(&collectProgress{c})
	result, err := collector.Run(ctx, c.runID)
	summary.Result = result
	c.absorbResult(result)
	if err != nil {
		return c.finish(summary, err)
	}

	if mode == ModeCollect {
		c.saveSummary(summary)
		c.setPhase(PhaseDone, "Collection complete: "+result.Summary())
		return summary, nil
	}

	outcome, err := c.publishItems(ctx, session, summary, result.DownloadedItems())
	if err != nil {
		return c.finish(summary, err)
	}

	detach = c.cfg.Upload.KeepBrowserOpen && outcome.Attempted > 0
	c.saveSummary(summary)
	c.setPhase(PhaseDone, "Run complete: "+outcome.Summary())
	return summary, nil
}

func (c *Coordinator) executePublish(ctx context.Context, summary *report.Summary) (*report.Summary, error) {
	items, prior, err := c.loadItems()
	if err != nil {
		return c.finish(summary, err)
	}
	if prior != nil {
		summary.Result = prior.Result
		if prior.LibraryURL != "" {
			summary.LibraryURL = prior.LibraryURL
		}
	}
	if len(items) == 0 {
		return c.finish(summary, errors.New(errors.ErrorTypeEmptyResult,
			fmt.Sprintf("no downloaded covers in %s", c.cfg.Download.OutputDir)))
	}
	c.mu.Lock()
	c.counters.Downloaded = len(items)
	c.mu.Unlock()

	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return c.finish(summary, errors.Wrap(errors.ErrorTypeEnvironment, "failed to launch browser", err))
	}
	detach := false
	defer func() { c.releaseSession(session, detach) }()

	outcome, err := c.publishItems(ctx, session, summary, items)
	if err != nil {
		return c.finish(summary, err)
	}

	detach = c.cfg.Upload.KeepBrowserOpen && outcome.Attempted > 0
	c.saveSummary(summary)
	c.setPhase(PhaseDone, "Publish complete: "+outcome.Summary())
	return summary, nil
}

// publishItems runs the publish phase and folds its outcome into the
// summary and counters.
func (c *Coordinator) publishItems(ctx context.Context, session browser.Session, summary *report.Summary, items []models.ImageRecord) (*models.UploadOutcome, error) {
	c.setPhase(PhaseUploading, fmt.Sprintf("Uploading %d covers to %s", len(items), c.cfg.Upload.TargetURL))

	publisher := publish.New(c.cfg, session, c.logger)
	publisher.SetProgress(&publishProgress{c})
	outcome, err := publisher.Publish(ctx, c.runID, items)
	summary.Upload = outcome
	c.absorbOutcome(outcome)
	return outcome, err
}

// loadItems rebuilds the publish batch from the previous run's summary,
// falling back to the image files themselves when no summary exists.
func (c *Coordinator) loadItems() ([]models.ImageRecord, *report.Summary, error) {
	dir := c.cfg.Download.OutputDir

	prior, err := report.Load(dir)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrorTypeEnvironment, "failed to read run summary", err)
	}
	if prior != nil && prior.Result != nil {
		return prior.Result.DownloadedItems(), prior, nil
	}

	items, err := report.ItemsFromDir(dir)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrorTypeEnvironment, "failed to list downloaded covers", err)
	}
	return items, prior, nil
}

// finish closes out a failed or cancelled run: it saves whatever partial
// summary exists, moves the phase machine to its terminal state, and hands
// the error back.
func (c *Coordinator) finish(summary *report.Summary, err error) (*report.Summary, error) {
	c.saveSummary(summary)
	if errors.IsCancelled(err) {
		c.setPhase(PhaseCancelled, "Run cancelled")
	} else {
		c.setPhase(PhaseFailed, err.Error())
	}
	return summary, err
}

// saveSummary persists the summary when there is anything to record. A
// save failure is logged, not fatal: the run's work is already on disk.
func (c *Coordinator) saveSummary(summary *report.Summary) {
	if summary.Result == nil && summary.Upload == nil {
		return
	}
	if err := report.Save(c.cfg.Download.OutputDir, summary); err != nil {
		c.logger.ErrorWithFields("Failed to save run summary", map[string]interface{}{
			"dir":   c.cfg.Download.OutputDir,
			"error": err.Error(),
		})
	}
}

// releaseSession hands the browser window to the human or closes it.
func (c *Coordinator) releaseSession(session browser.Session, detach bool) {
	if detach {
		c.logger.Info("Browser window left open, finish the tier list there")
		session.Detach()
		return
	}
	if err := session.Close(); err != nil {
		c.logger.DebugWithFields("Browser close failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// setPhase moves the run to a new phase and emits the transition. Calls
// that would break the transition table are dropped.
func (c *Coordinator) setPhase(to Phase, line string) {
	c.mu.Lock()
	if c.phase != to {
		if !c.phase.CanTransition(to) {
			from := c.phase
			c.mu.Unlock()
			c.logger.WarnWithFields("Ignoring illegal phase transition", map[string]interface{}{
				"from": string(from),
				"to":   string(to),
			})
			return
		}
		c.phase = to
	}
	ev := c.eventLocked(line)
	c.mu.Unlock()
	c.emitter.Emit(ev)
}

// emit publishes a counter update in the current phase.
func (c *Coordinator) emit(line string) {
	c.mu.Lock()
	ev := c.eventLocked(line)
	c.mu.Unlock()
	c.emitter.Emit(ev)
}

func (c *Coordinator) eventLocked(line string) Event {
	c.seq++
	return Event{
		Seq:      c.seq,
		Time:     time.Now(),
		RunID:    c.runID,
		Phase:    c.phase,
		Counters: c.counters,
		Line:     line,
	}
}

// absorbResult makes the collection result the authoritative source for
// the collect-side counters.
func (c *Coordinator) absorbResult(result *models.CollectionResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	c.counters.Found = result.Found
	c.counters.Downloaded = result.Downloaded
	c.counters.DownloadFailed = result.Failed
	c.counters.Skipped = result.Skipped
	c.counters.ScrollIterations = result.ScrollIterations
	c.mu.Unlock()
}

func (c *Coordinator) absorbOutcome(outcome *models.UploadOutcome) {
	if outcome == nil {
		return
	}
	c.mu.Lock()
	c.counters.Uploaded = outcome.Uploaded
	c.counters.UploadFailed = outcome.Failed
	c.mu.Unlock()
}

// collectProgress translates collect milestones into run events.
type collectProgress struct{ c *Coordinator }

func (p *collectProgress) LoginWaiting(elapsed, remaining time.Duration) {
	c := p.c
	c.mu.Lock()
	waiting := c.phase == PhaseWaitingLogin
	c.mu.Unlock()
	if !waiting {
		c.setPhase(PhaseWaitingLogin,
			fmt.Sprintf("Waiting for login in the browser window (%s left)", remaining.Round(time.Second)))
		return
	}
	c.emit("")
}

func (p *collectProgress) Scrolled(iteration int, height int64, stable int) {
	c := p.c
	c.mu.Lock()
	c.counters.ScrollIterations = iteration
	waiting := c.phase == PhaseWaitingLogin
	c.mu.Unlock()
	if waiting {
		c.setPhase(PhaseScraping, "Login detected, resuming collection")
		return
	}
	c.emit("")
}

func (p *collectProgress) Found(total int) {
	c := p.c
	c.mu.Lock()
	c.counters.Found = total
	c.mu.Unlock()
	c.emit(fmt.Sprintf("Found %d covers on the library page", total))
}

func (p *collectProgress) ItemFinished(item models.ImageRecord, done, total int) {
	c := p.c
	c.mu.Lock()
	switch item.Status {
	case models.StatusDownloaded:
		c.counters.Downloaded++
	case models.StatusFailed:
		c.counters.DownloadFailed++
	}
	c.mu.Unlock()
	if item.Status == models.StatusFailed {
		c.emit(fmt.Sprintf("Download failed: %s", item.Title))
		return
	}
	c.emit("")
}

// publishProgress translates publish milestones into run events.
type publishProgress struct{ c *Coordinator }

func (p *publishProgress) ItemFinished(item models.ImageRecord, done, total int) {
	c := p.c
	c.mu.Lock()
	switch item.Status {
	case models.StatusUploaded:
		c.counters.Uploaded++
	case models.StatusUploadFailed:
		c.counters.UploadFailed++
	}
	c.mu.Unlock()
	if item.Status == models.StatusUploadFailed {
		c.emit(fmt.Sprintf("Upload failed: %s", item.Title))
		return
	}
	c.emit("")
}
