// Package browsertest provides a scripted Session for exercising the
// engine without a browser. Each method delegates to an optional func
// field; unset fields succeed with zero values. All calls are recorded.
package browsertest

import (
	"context"
	"sync"
	"time"

	"tierup/pkg/browser"
)

// Session is a scriptable fake of browser.Session.
type Session struct {
	mu sync.Mutex

	NavigateFunc    func(ctx context.Context, url string) error
	TitleFunc       func(ctx context.Context) (string, error)
	BodyClassFunc   func(ctx context.Context) (string, error)
	ScrollFunc      func(ctx context.Context) error
	HeightFunc      func(ctx context.Context) (int64, error)
	HTMLFunc        func(ctx context.Context) (string, error)
	WaitVisibleFunc func(ctx context.Context, selector string, timeout time.Duration) error
	CountFunc       func(ctx context.Context, selector string) (int, error)
	SetValueFunc    func(ctx context.Context, selector, value string) error
	ForceShowFunc   func(ctx context.Context, selector string) error
	SetFilesFunc    func(ctx context.Context, selector string, paths []string) error

	// Recorded calls.
	Navigations []string
	Scrolls     int
	WaitedFor   []string
	Values      map[string]string
	Shown       []string
	Uploads     [][]string
	Closed      bool
	Detached    bool
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.Navigations = append(s.Navigations, url)
	fn := s.NavigateFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, url)
	}
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	fn := s.TitleFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return "", nil
}

func (s *Session) BodyClass(ctx context.Context) (string, error) {
	s.mu.Lock()
	fn := s.BodyClassFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return "", nil
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	s.mu.Lock()
	s.Scrolls++
	fn := s.ScrollFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (s *Session) ScrollHeight(ctx context.Context) (int64, error) {
	s.mu.Lock()
	fn := s.HeightFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return 0, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	fn := s.HTMLFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return "<html></html>", nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	s.WaitedFor = append(s.WaitedFor, selector)
	fn := s.WaitVisibleFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, selector, timeout)
	}
	return nil
}

func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	s.mu.Lock()
	fn := s.CountFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, selector)
	}
	return 0, nil
}

func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[selector] = value
	fn := s.SetValueFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, selector, value)
	}
	return nil
}

func (s *Session) ForceShow(ctx context.Context, selector string) error {
	s.mu.Lock()
	s.Shown = append(s.Shown, selector)
	fn := s.ForceShowFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, selector)
	}
	return nil
}

func (s *Session) SetFiles(ctx context.Context, selector string, paths []string) error {
	s.mu.Lock()
	copied := make([]string, len(paths))
	copy(copied, paths)
	s.Uploads = append(s.Uploads, copied)
	fn := s.SetFilesFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, selector, paths)
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Detached = true
}

// UploadCount returns how many SetFiles calls were recorded.
func (s *Session) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Uploads)
}

// HeightSequence yields the given heights one per call, repeating the last
// forever. Useful for scripting a page that grows and then settles.
func HeightSequence(heights ...int64) func(context.Context) (int64, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		h := heights[i]
		if i < len(heights)-1 {
			i++
		}
		return h, nil
	}
}

// ClassSequence yields the given body classes one per call, repeating the
// last forever. Useful for scripting a login wall that clears.
func ClassSequence(classes ...string) func(context.Context) (string, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := classes[i]
		if i < len(classes)-1 {
			i++
		}
		return c, nil
	}
}

// CountSequence yields the given counts one per call, repeating the last
// forever. Useful for scripting upload confirmations appearing.
func CountSequence(counts ...int) func(context.Context, string) (int, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context, string) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		c := counts[i]
		if i < len(counts)-1 {
			i++
		}
		return c, nil
	}
}

// Launcher hands out a fixed Session, implementing browser.SessionLauncher.
type Launcher struct {
	Session *Session
	Err     error

	mu       sync.Mutex
	launches int
}

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Session, nil
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}
