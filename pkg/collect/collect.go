package collect

import (
	"context"
	"strings"
	"time"

	"tierup/internal/downloader"
	"tierup/pkg/auth"
	"tierup/pkg/browser"
	"tierup/pkg/config"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/models"
	"tierup/pkg/ratelimit"
	"tierup/pkg/retry"
	"tierup/pkg/storage"
)

// Progress receives collection milestones as they happen. Implementations
// are called from the collecting goroutine and must return quickly.
type Progress interface {
	LoginWaiting(elapsed, remaining time.Duration)
	Scrolled(iteration int, height int64, stable int)
	Found(total int)
	ItemFinished(item models.ImageRecord, done, total int)
}

type nopProgress struct{}

func (nopProgress) LoginWaiting(elapsed, remaining time.Duration)         {}
func (nopProgress) Scrolled(iteration int, height int64, stable int)      {}
func (nopProgress) Found(total int)                                       {}
func (nopProgress) ItemFinished(item models.ImageRecord, done, total int) {}

// Collector walks the library page and downloads every cover it finds.
type Collector struct {
	session   browser.Session
	fetcher   downloader.Fetcher
	store     storage.Store
	pacer     ratelimit.Limiter
	waiter    *auth.Waiter
	extractor *Extractor
	config    *config.Config
	logger    logger.Logger
	progress  Progress
}

// New wires a collector from the configuration. The session, fetcher and
// store come from the caller so the browser can outlive the collector and
// tests can substitute fakes.
func New(cfg *config.Config, session browser.Session, fetcher downloader.Fetcher, store storage.Store, log logger.Logger) *Collector {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Collector{
		session: session,
		fetcher: fetcher,
		store:   store,
		pacer:   ratelimit.ForConfig(cfg.Download.Delay.Dur(), cfg.Download.Burst),
		waiter: auth.NewWaiter(
			cfg.Library.LoginMarker,
			cfg.Library.LoginPollInterval.Dur(),
			cfg.Library.LoginMaxWait.Dur(),
			log,
		),
		extractor: NewExtractor(cfg.Download.SkipNames),
		config:    cfg,
		logger:    log,
		progress:  nopProgress{},
	}
}

// SetProgress attaches a progress sink.
func (c *Collector) SetProgress(p Progress) {
	if p != nil {
		c.progress = p
	}
}

// Run executes one full collection pass: open the library page, wait out
// the login wall, scroll until the lazy loader settles, extract and
// deduplicate the covers, then download them one by one. The returned
// result is valid even when err is non-nil; it holds whatever was done
// before the failure.
func (c *Collector) Run(ctx context.Context, runID string) (*models.CollectionResult, error) {
	result := &models.CollectionResult{
		RunID:      runID,
		LibraryURL: c.config.Library.URL,
		StartedAt:  time.Now(),
	}
	defer func() { result.FinishedAt = time.Now() }()

	c.logger.InfoWithFields("Opening library page", map[string]interface{}{
		"url": c.config.Library.URL,
	})
	if err := c.session.Navigate(ctx, c.config.Library.URL); err != nil {
		return result, wrapNavigation(err, "failed to open library page")
	}
	if title, err := c.session.Title(ctx); err == nil && title != "" {
		c.logger.DebugWithFields("Library page loaded", map[string]interface{}{
			"title": title,
		})
	}

	c.waiter.OnWaiting = c.progress.LoginWaiting
	if err := c.waiter.Await(ctx, c.session); err != nil {
		return result, err
	}

	iterations, err := c.scrollUntilSettled(ctx)
	result.ScrollIterations = iterations
	if err != nil {
		return result, err
	}

	html, err := c.session.HTML(ctx)
	if err != nil {
		return result, wrapNavigation(err, "failed to read the library page markup")
	}

	candidates, skipped, err := c.extractor.Extract(html)
	if err != nil {
		return result, err
	}
	result.Skipped = skipped

	result.Items = c.dedupe(candidates)
	result.Found = len(result.Items)
	c.progress.Found(result.Found)

	c.logger.InfoWithFields("Library page extracted", map[string]interface{}{
		"found":   result.Found,
		"skipped": result.Skipped,
		"scrolls": result.ScrollIterations,
	})

	if result.Found == 0 {
		return result, errors.NewWithURL(errors.ErrorTypeEmptyResult,
			"no cover images found on the library page", c.config.Library.URL)
	}

	if err := c.downloadAll(ctx, result); err != nil {
		return result, err
	}

	c.logger.InfoWithFields("Collection finished", map[string]interface{}{
		"found":      result.Found,
		"downloaded": result.Downloaded,
		"failed":     result.Failed,
	})
	return result, nil
}

// scrollUntilSettled scrolls to the bottom and pauses until the page
// height stops growing. The stable counter tracks consecutive readings of
// the same height; the threshold says how many of those mean settled.
// Running out of iterations is not an error, the page is just taken as-is.
func (c *Collector) scrollUntilSettled(ctx context.Context) (int, error) {
	pause := c.config.Scroll.Pause.Dur()
	threshold := c.config.Scroll.SettleThreshold

	var lastHeight int64 = -1
	stable := 0

	for iteration := 1; iteration <= c.config.Scroll.MaxIterations; iteration++ {
		if err := c.session.ScrollToBottom(ctx); err != nil {
			return iteration - 1, wrapNavigation(err, "failed to scroll the library page")
		}
		if err := retry.Wait(ctx, pause); err != nil {
			return iteration - 1, err
		}

		height, err := c.session.ScrollHeight(ctx)
		if err != nil {
			return iteration - 1, wrapNavigation(err, "failed to measure the library page")
		}

		if height == lastHeight {
			stable++
		} else {
			stable = 1
			lastHeight = height
		}

		logger.LogScrollProgress(c.logger, iteration, height, stable)
		c.progress.Scrolled(iteration, height, stable)

		if stable >= threshold {
			return iteration, nil
		}
		if err := ctx.Err(); err != nil {
			return iteration, err
		}
	}

	c.logger.WarnWithFields("Scroll budget exhausted before the page settled", map[string]interface{}{
		"iterations": c.config.Scroll.MaxIterations,
	})
	return c.config.Scroll.MaxIterations, nil
}

// dedupe drops repeated covers, keeping first appearances in page order.
// Two URLs collapse when they share a canonical key; a URL that cannot be
// canonicalized keeps its raw string as the key so the item still gets a
// download attempt.
func (c *Collector) dedupe(candidates []Candidate) []models.ImageRecord {
	seen := make(map[string]bool, len(candidates))
	items := make([]models.ImageRecord, 0, len(candidates))

	for _, cand := range candidates {
		key, err := CanonicalKey(cand.SourceURL)
		if err != nil {
			key = strings.ToLower(cand.SourceURL)
			c.logger.DebugWithFields("using the raw URL as the dedup key", map[string]interface{}{
				"url": cand.SourceURL,
			})
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		items = append(items, models.ImageRecord{
			ID:        len(items) + 1,
			Title:     cand.Title,
			SourceURL: cand.SourceURL,
			Key:       key,
			Status:    models.StatusPending,
		})
	}
	return items
}

// downloadAll fetches the items sequentially in page order. One item
// failing does not stop the rest; environment failures and cancellation
// do.
func (c *Collector) downloadAll(ctx context.Context, result *models.CollectionResult) error {
	total := len(result.Items)

	for i := range result.Items {
		item := &result.Items[i]

		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}

		err := c.downloadOne(ctx, item)
		if err != nil && errors.IsCancelled(err) {
			// Leave the item pending; completed items stand.
			return err
		}

		if err == nil {
			item.Status = models.StatusDownloaded
			result.Downloaded++
		} else {
			item.Status = models.StatusFailed
			item.LastError = err.Error()
			result.Failed++
		}

		logger.LogDownload(c.logger, item.Title, item.SourceURL, item.Size, item.Attempts, err)
		c.progress.ItemFinished(*item, i+1, total)

		if errors.IsEnvironment(err) {
			return err
		}
	}
	return nil
}

// downloadOne fetches and saves a single item with bounded retries.
func (c *Collector) downloadOne(ctx context.Context, item *models.ImageRecord) error {
	cfg := retry.Config{
		MaxAttempts: c.config.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			InitialDelay: c.config.Retry.InitialDelay.Dur(),
			MaxDelay:     c.config.Retry.MaxDelay.Dur(),
			Multiplier:   c.config.Retry.Multiplier,
			JitterFactor: 0.1,
		},
		RetryIf: errors.IsRetryable,
		Context: ctx,
		Logger:  c.logger,
	}

	return retry.Do(cfg, func() error {
		item.Attempts++

		data, err := c.fetcher.Fetch(ctx, item.SourceURL)
		if err != nil {
			return err
		}

		saved, err := c.store.Save(item.Title, item.SourceURL, data)
		if err != nil {
			return err
		}

		item.Filename = saved.Name
		item.LocalPath = saved.Path
		item.Size = saved.Size
		return nil
	})
}

// wrapNavigation classifies raw browser errors, letting cancellation and
// already-typed errors pass through untouched.
func wrapNavigation(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.IsCancelled(err) || errors.TypeOf(err) != "" {
		return err
	}
	return errors.Wrap(errors.ErrorTypeNavigation, message, err)
}
