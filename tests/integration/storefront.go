// Package integration drives the whole engine against a fake storefront:
// an httptest CDN serving deterministic cover bytes and a scripted browser
// session standing in for the library and builder pages.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"tierup/pkg/browser/browsertest"
)

// Render styles for a library entry, matching the markup variants the
// real page mixes: eager tiles, lazy-loaded tiles, and responsive
// picture elements.
const (
	RenderPlain  = ""
	RenderLazy   = "lazy"
	RenderSrcset = "srcset"
)

// Game is one entry on the fake library page.
type Game struct {
	Title  string
	Image  string // CDN path of the full cover, query string allowed
	Render string
}

// FakeStorefront bundles the CDN behind the library page. Cover paths can
// be scripted to fail once or permanently, and every request is counted.
type FakeStorefront struct {
	cdn *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	failures map[string]int
	failOnce map[string]int
}

// NewFakeStorefront starts the CDN. Callers own Close.
func NewFakeStorefront() *FakeStorefront {
	s := &FakeStorefront{
		hits:     make(map[string]int),
		failures: make(map[string]int),
		failOnce: make(map[string]int),
	}
	s.cdn = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Close shuts the CDN down.
func (s *FakeStorefront) Close() {
	s.cdn.Close()
}

// URL returns the storefront's base URL.
func (s *FakeStorefront) URL() string {
	return s.cdn.URL
}

// CoverURL turns a CDN path into an absolute URL.
func (s *FakeStorefront) CoverURL(path string) string {
	return s.cdn.URL + path
}

// FailWith makes every request for path return the given status.
func (s *FakeStorefront) FailWith(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// FailOnce makes only the next request for path return the given status.
func (s *FakeStorefront) FailOnce(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnce[path] = status
}

// Hits returns how many requests path has received.
func (s *FakeStorefront) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *FakeStorefront) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.hits[path]++
	status := 0
	if code, ok := s.failOnce[path]; ok {
		status = code
		delete(s.failOnce, path)
	} else if code, ok := s.failures[path]; ok {
		status = code
	}
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(CoverBytes(path))
}

// CoverBytes is the deterministic body the CDN serves for a path, so
// tests can verify a saved file holds exactly what the CDN sent.
func CoverBytes(path string) []byte {
	return []byte("cover-bytes:" + path)
}

// LibraryHTML renders the games the way the library page does: a grid of
// rows whose covers hide behind picture/srcset, a plain img, or a
// lazy-load data-src attribute.
func (s *FakeStorefront) LibraryHTML(games []Game) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="gameslistitems">`)
	for _, game := range games {
		full := s.CoverURL(game.Image)
		switch game.Render {
		case RenderSrcset:
			thumb := s.CoverURL("/thumbs" + game.Image)
			fmt.Fprintf(&b,
				`<div class="gameslistitems_GameRow"><picture><source srcset="%s 600w, %s 300w"><img src="%s" alt="%s"></picture></div>`,
				full, thumb, thumb, game.Title)
		case RenderLazy:
			fmt.Fprintf(&b,
				`<div class="gameslistitems_GameRow"><img data-src="%s" alt="%s"></div>`,
				full, game.Title)
		default:
			fmt.Fprintf(&b,
				`<div class="gameslistitems_GameRow"><img src="%s" alt="%s"></div>`,
				full, game.Title)
		}
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// NewSession scripts a browser session over this storefront. The library
// page grows once and settles, and the builder page renders one tile per
// accepted file, which is what upload confirmation watches for.
func (s *FakeStorefront) NewSession(games []Game) *browsertest.Session {
	var tiles int32
	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("responsive_page gamelibrary"),
		HeightFunc:    browsertest.HeightSequence(1200, 2600, 2600, 2600),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return s.LibraryHTML(games), nil
		},
	}
	session.CountFunc = func(ctx context.Context, selector string) (int, error) {
		return int(atomic.LoadInt32(&tiles)), nil
	}
	session.SetFilesFunc = func(ctx context.Context, selector string, paths []string) error {
		atomic.AddInt32(&tiles, int32(len(paths)))
		return nil
	}
	return session
}
