// Package auth recognizes the storefront's login wall and waits for the
// human to clear it. The site gates library pages behind a login overlay
// it announces through a class on the body element; nothing here handles
// credentials, the login itself happens in the visible browser window.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tierup/pkg/browser"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
)

// maxPollFailures bounds how many consecutive page inspections may fail
// before the wait gives up. Single failures are expected mid-navigation,
// right as the login form submits.
const maxPollFailures = 3

// ErrLoginTimeout reports that the login wall never cleared within
// MaxWait. The run cannot proceed without the human finishing the login,
// so this is fatal for the whole run.
var ErrLoginTimeout = errors.New(errors.ErrorTypeEnvironment, "login wall did not clear in time")

// Detector recognizes the login wall from the body element's class list.
type Detector struct {
	// Marker is matched case-insensitively as a substring of the class
	// list. An empty marker disables detection.
	Marker string
}

// WallPresent reports whether the class list announces the login wall.
func (d Detector) WallPresent(bodyClass string) bool {
	if d.Marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(bodyClass), strings.ToLower(d.Marker))
}

// Waiter polls the page until the login wall clears. Waiting is a normal
// state of a run, not a failure; only exceeding MaxWait is an error.
type Waiter struct {
	Detector     Detector
	PollInterval time.Duration
	MaxWait      time.Duration

	// OnWaiting, when set, is called once per poll while the wall is up,
	// so progress surfaces can show elapsed and remaining time.
	OnWaiting func(elapsed, remaining time.Duration)

	logger logger.Logger
}

// NewWaiter creates a waiter with the given marker and timing.
func NewWaiter(marker string, pollInterval, maxWait time.Duration, log logger.Logger) *Waiter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Waiter{
		Detector:     Detector{Marker: marker},
		PollInterval: pollInterval,
		MaxWait:      maxWait,
		logger:       log,
	}
}

// Await returns nil as soon as the page shows no login wall. If the wall
// is up it polls until the wall clears, MaxWait passes, or ctx ends.
func (w *Waiter) Await(ctx context.Context, session browser.Session) error {
	class, err := session.BodyClass(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation, "failed to inspect page state", err)
	}
	if !w.Detector.WallPresent(class) {
		return nil
	}

	w.logger.InfoWithFields("Login required, waiting for login in the browser window", map[string]interface{}{
		"max_wait": w.MaxWait,
	})

	start := time.Now()
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(w.MaxWait)
	defer deadline.Stop()

	pollFailures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline.C:
			return fmt.Errorf("%w (waited %s)", ErrLoginTimeout, w.MaxWait)

		case <-ticker.C:
			class, err := session.BodyClass(ctx)
			if err != nil {
				pollFailures++
				if pollFailures >= maxPollFailures {
					return errors.Wrap(errors.ErrorTypeNavigation,
						"lost the page while waiting for login", err)
				}
				w.logger.DebugWithFields("page inspection failed, retrying", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			pollFailures = 0

			if !w.Detector.WallPresent(class) {
				w.logger.InfoWithFields("Login detected, continuing", map[string]interface{}{
					"waited": time.Since(start).Round(time.Second),
				})
				return nil
			}

			elapsed := time.Since(start)
			logger.LogLoginWait(w.logger, elapsed.Round(time.Second), (w.MaxWait - elapsed).Round(time.Second))
			if w.OnWaiting != nil {
				w.OnWaiting(elapsed, w.MaxWait-elapsed)
			}
		}
	}
}
