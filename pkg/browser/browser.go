// Package browser defines the browser capability the engine is built
// against and its Chrome implementation. Everything above this package
// talks to the Session interface, so collectors and publishers can be
// exercised with scripted fakes.
package browser

import (
	"context"
	"time"
)

// Session is one live browser tab the engine drives. All methods honor the
// caller's context; a cancelled context aborts the operation without
// killing the tab.
type Session interface {
	// Navigate loads the URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Title returns the current document title.
	Title(ctx context.Context) (string, error)

	// BodyClass returns document.body.className, used for login-wall
	// detection.
	BodyClass(ctx context.Context) (string, error)

	// ScrollToBottom scrolls the window to the current bottom of the page.
	ScrollToBottom(ctx context.Context) error

	// ScrollHeight returns document.body.scrollHeight.
	ScrollHeight(ctx context.Context) (int64, error)

	// HTML returns the full serialized document.
	HTML(ctx context.Context) (string, error)

	// WaitVisible blocks until the selector matches a visible node or the
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Count returns how many nodes currently match the selector.
	Count(ctx context.Context, selector string) (int, error)

	// SetValue sets the value of a form control and fires its change event.
	SetValue(ctx context.Context, selector, value string) error

	// ForceShow makes a hidden element interactable by clearing its
	// display, visibility and opacity styles.
	ForceShow(ctx context.Context, selector string) error

	// SetFiles attaches local file paths to a file input.
	SetFiles(ctx context.Context, selector string, paths []string) error

	// Close shuts the tab and the browser it belongs to.
	Close() error

	// Detach abandons the session without closing the browser, leaving the
	// window to the human.
	Detach()
}

// Launcher starts real Chrome sessions.
type Launcher struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int

	// OpTimeout bounds individual browser operations. Zero means a
	// 45 second default.
	OpTimeout time.Duration
}

// SessionLauncher is the factory seam used by the run coordinator.
type SessionLauncher interface {
	Launch(ctx context.Context) (Session, error)
}
