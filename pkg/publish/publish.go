package publish

import (
	"context"
	"fmt"
	"time"

	"tierup/pkg/browser"
	"tierup/pkg/config"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/models"
	"tierup/pkg/ratelimit"
	"tierup/pkg/retry"
)

// confirmPollInterval is how often the confirmation selector is re-counted
// while waiting for the builder to acknowledge an upload.
const confirmPollInterval = 500 * time.Millisecond

// Progress receives publish milestones. Implementations are called from
// the publishing goroutine and must return quickly.
type Progress interface {
	ItemFinished(item models.ImageRecord, done, total int)
}

type nopProgress struct{}

func (nopProgress) ItemFinished(item models.ImageRecord, done, total int) {}

// Publisher pushes downloaded covers into the tier-list builder page, one
// file per attempt, and waits for the builder to render each one before
// moving on.
type Publisher struct {
	session     browser.Session
	pacer       ratelimit.Limiter
	config      *config.Config
	logger      logger.Logger
	progress    Progress
	confirmPoll time.Duration
}

// New wires a publisher from the configuration. The session comes from the
// caller so one browser can serve both the collect and publish phases.
func New(cfg *config.Config, session browser.Session, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Publisher{
		session:     session,
		pacer:       ratelimit.ForConfig(cfg.Upload.Delay.Dur(), 1),
		config:      cfg,
		logger:      log,
		progress:    nopProgress{},
		confirmPoll: confirmPollInterval,
	}
}

// SetProgress attaches a progress sink.
func (p *Publisher) SetProgress(pr Progress) {
	if pr != nil {
		p.progress = pr
	}
}

// Publish uploads every downloaded item to the builder page. Items that
// never made it to disk are ignored. The returned outcome is valid even
// when err is non-nil; it holds whatever was uploaded before the failure.
func (p *Publisher) Publish(ctx context.Context, runID string, items []models.ImageRecord) (*models.UploadOutcome, error) {
	outcome := &models.UploadOutcome{
		RunID:     runID,
		TargetURL: p.config.Upload.TargetURL,
		StartedAt: time.Now(),
	}
	defer func() { outcome.FinishedAt = time.Now() }()

	outcome.Items = uploadable(items)
	if len(outcome.Items) == 0 {
		return outcome, errors.New(errors.ErrorTypeEmptyResult, "no downloaded images to upload")
	}

	p.logger.InfoWithFields("Opening builder page", map[string]interface{}{
		"url":   p.config.Upload.TargetURL,
		"items": len(outcome.Items),
	})
	if err := p.session.Navigate(ctx, p.config.Upload.TargetURL); err != nil {
		return outcome, wrapNavigation(err, "failed to open builder page")
	}

	input, err := p.waitForFileInput(ctx)
	if err != nil {
		return outcome, err
	}

	p.setOrientation(ctx)

	if err := p.session.ForceShow(ctx, input); err != nil {
		p.logger.WarnWithFields("Could not reveal the file input, uploading anyway", map[string]interface{}{
			"selector": input,
			"error":    err.Error(),
		})
	}

	total := len(outcome.Items)
	for i := range outcome.Items {
		item := &outcome.Items[i]

		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		if err := p.pacer.Wait(ctx); err != nil {
			return outcome, err
		}

		outcome.Attempted++
		err := p.uploadOne(ctx, input, item)
		if err != nil && errors.IsCancelled(err) {
			// Leave the item as it was; confirmed uploads stand.
			return outcome, err
		}

		if err == nil {
			item.Status = models.StatusUploaded
			outcome.Uploaded++
		} else {
			item.Status = models.StatusUploadFailed
			item.LastError = err.Error()
			outcome.Failed++
		}
		logger.LogUpload(p.logger, item.Title, item.LocalPath, item.Attempts, err)
		p.progress.ItemFinished(*item, i+1, total)
	}

	p.logger.InfoWithFields("Upload finished", map[string]interface{}{
		"uploaded": outcome.Uploaded,
		"failed":   outcome.Failed,
	})
	if p.config.Upload.KeepBrowserOpen {
		p.logger.Info("Leaving the browser window open, finish the tier list there")
	}

	return outcome, nil
}

// uploadable copies the records worth sending: downloaded, with a local
// file to point the input at. Attempt counts restart for the upload phase.
func uploadable(items []models.ImageRecord) []models.ImageRecord {
	out := make([]models.ImageRecord, 0, len(items))
	for _, item := range items {
		if item.Status != models.StatusDownloaded || item.LocalPath == "" {
			continue
		}
		item.Attempts = 0
		item.LastError = ""
		out = append(out, item)
	}
	return out
}

// waitForFileInput waits for the builder's file input, falling back to the
// generic selector when the primary one never appears. Neither appearing
// means the page is not the builder we expect.
func (p *Publisher) waitForFileInput(ctx context.Context) (string, error) {
	timeout := p.config.Browser.NavTimeout.Dur()

	primary := p.config.Upload.FileInput
	if err := p.session.WaitVisible(ctx, primary, timeout); err == nil {
		return primary, nil
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	} else {
		p.logger.DebugWithFields("Primary file input not found, trying fallback", map[string]interface{}{
			"selector": primary,
			"error":    err.Error(),
		})
	}

	fallback := p.config.Upload.FileInputFallback
	if fallback != "" {
		if err := p.session.WaitVisible(ctx, fallback, timeout); err == nil {
			return fallback, nil
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", errors.NewWithURL(errors.ErrorTypeEnvironment,
		"no usable file input on the builder page", p.config.Upload.TargetURL)
}

// setOrientation selects the configured tile orientation. The builder works
// without it, so a failure is logged and ignored.
func (p *Publisher) setOrientation(ctx context.Context) {
	selector := p.config.Upload.OrientationSelect
	value := p.config.Upload.Orientation
	if selector == "" || value == "" {
		return
	}

	if err := p.session.SetValue(ctx, selector, value); err != nil {
		p.logger.WarnWithFields("Could not set tile orientation", map[string]interface{}{
			"selector": selector,
			"value":    value,
			"error":    err.Error(),
		})
		return
	}
	p.logger.DebugWithFields("Tile orientation set", map[string]interface{}{
		"value": value,
	})
}

// uploadOne sends a single file and waits for the builder to confirm it,
// retrying transient failures with backoff.
func (p *Publisher) uploadOne(ctx context.Context, input string, item *models.ImageRecord) error {
	retryCfg := retry.Config{
		MaxAttempts: p.config.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			InitialDelay: p.config.Retry.InitialDelay.Dur(),
			MaxDelay:     p.config.Retry.MaxDelay.Dur(),
			Multiplier:   p.config.Retry.Multiplier,
			JitterFactor: 0.1,
		},
		RetryIf: errors.IsRetryable,
		Context: ctx,
		Logger:  p.logger,
	}

	return retry.Do(retryCfg, func() error {
		item.Attempts++
		return p.attemptUpload(ctx, input, item)
	})
}

// attemptUpload is one try: read the baseline tile count, attach the file,
// and poll until a new tile shows up or the confirmation window closes.
func (p *Publisher) attemptUpload(ctx context.Context, input string, item *models.ImageRecord) error {
	baseline, err := p.session.Count(ctx, p.config.Upload.ConfirmSelector)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrorTypeUpload, "failed to count builder tiles", err).WithItem(item.Title)
	}

	if err := p.session.SetFiles(ctx, input, []string{item.LocalPath}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrorTypeUpload, "failed to attach file", err).WithItem(item.Title)
	}

	return p.awaitConfirmation(ctx, item, baseline)
}

// awaitConfirmation polls the confirmation selector until the tile count
// rises above the pre-attempt baseline.
func (p *Publisher) awaitConfirmation(ctx context.Context, item *models.ImageRecord, baseline int) error {
	deadline := time.Now().Add(p.config.Upload.ConfirmTimeout.Dur())
	ticker := time.NewTicker(p.confirmPoll)
	defer ticker.Stop()

	for {
		count, err := p.session.Count(ctx, p.config.Upload.ConfirmSelector)
		if err == nil && count > baseline {
			p.logger.DebugWithFields("Upload confirmed", map[string]interface{}{
				"item":  item.Title,
				"tiles": count,
			})
			return nil
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Now().After(deadline) {
			return errors.New(errors.ErrorTypeUpload,
				fmt.Sprintf("upload not confirmed within %s", p.config.Upload.ConfirmTimeout.Dur())).
				WithItem(item.Title)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func wrapNavigation(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.IsCancelled(err) || errors.TypeOf(err) != "" {
		return err
	}
	return errors.Wrap(errors.ErrorTypeNavigation, message, err)
}
