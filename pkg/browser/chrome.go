package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"tierup/pkg/errors"
)

// stealthScript hides the automation flag some sites key their bot checks
// on. Registered before the first navigation so it runs on every document.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

const defaultOpTimeout = 45 * time.Second

// Chrome is the Session implementation backed by a chromedp-driven browser.
type Chrome struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	opTimeout   time.Duration
	detached    bool
}

// Launch starts a Chrome process and opens one tab. A failure here means
// the environment cannot run the engine at all.
func (l *Launcher) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.WindowWidth > 0 && l.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.WindowWidth, l.WindowHeight))
	}
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx:         browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		opTimeout:   l.OpTimeout,
	}
	if c.opTimeout <= 0 {
		c.opTimeout = defaultOpTimeout
	}

	// The first Run starts the browser process and installs the stealth
	// script for every subsequent document.
	err := c.run(ctx, c.opTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, errors.Wrap(errors.ErrorTypeEnvironment, "failed to start browser", err)
	}

	return c, nil
}

// run executes actions against the tab, bounded by timeout and the
// caller's context.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, c.opTimeout, chromedp.Navigate(url)); err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation, fmt.Sprintf("failed to load %s", url), err)
	}
	return nil
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, c.opTimeout, chromedp.Title(&title)); err != nil {
		return "", errors.Wrap(errors.ErrorTypeNavigation, "failed to read page title", err)
	}
	return title, nil
}

func (c *Chrome) BodyClass(ctx context.Context) (string, error) {
	var class string
	err := c.run(ctx, c.opTimeout,
		chromedp.Evaluate(`document.body ? document.body.className : ""`, &class))
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeNavigation, "failed to read body class", err)
	}
	return class, nil
}

func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	err := c.run(ctx, c.opTimeout,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation, "failed to scroll page", err)
	}
	return nil
}

func (c *Chrome) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	err := c.run(ctx, c.opTimeout,
		chromedp.Evaluate(`document.body.scrollHeight`, &height))
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeNavigation, "failed to read scroll height", err)
	}
	return height, nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.opTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", errors.Wrap(errors.ErrorTypeNavigation, "failed to read page html", err)
	}
	return html, nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.opTimeout
	}
	err := c.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation,
			fmt.Sprintf("element %s did not appear within %s", selector, timeout), err)
	}
	return nil
}

func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	var count int
	expr := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := c.run(ctx, c.opTimeout, chromedp.Evaluate(expr, &count)); err != nil {
		return 0, errors.Wrap(errors.ErrorTypeNavigation,
			fmt.Sprintf("failed to count %s", selector), err)
	}
	return count, nil
}

func (c *Chrome) SetValue(ctx context.Context, selector, value string) error {
	err := c.run(ctx, c.opTimeout, chromedp.SetValue(selector, value, chromedp.ByQuery))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation,
			fmt.Sprintf("failed to set value on %s", selector), err)
	}
	return nil
}

func (c *Chrome) ForceShow(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(function() {
		var el = document.querySelector(%q);
		if (!el) { return false; }
		el.style.display = 'block';
		el.style.visibility = 'visible';
		el.style.opacity = '1';
		return true;
	})()`, selector)

	var found bool
	if err := c.run(ctx, c.opTimeout, chromedp.Evaluate(expr, &found)); err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation,
			fmt.Sprintf("failed to reveal %s", selector), err)
	}
	if !found {
		return errors.New(errors.ErrorTypeNavigation,
			fmt.Sprintf("element %s not found", selector))
	}
	return nil
}

func (c *Chrome) SetFiles(ctx context.Context, selector string, paths []string) error {
	err := c.run(ctx, c.opTimeout, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation,
			fmt.Sprintf("failed to attach files to %s", selector), err)
	}
	return nil
}

// Close shuts down the tab and the browser process.
func (c *Chrome) Close() error {
	if c.detached {
		return nil
	}
	c.cancelCtx()
	c.cancelAlloc()
	return nil
}

// Detach leaves the browser running. The window stays with the operator;
// the process exits without it.
func (c *Chrome) Detach() {
	c.detached = true
}
