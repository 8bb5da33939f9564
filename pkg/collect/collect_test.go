package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tierup/internal/downloader"
	"tierup/pkg/browser/browsertest"
	"tierup/pkg/config"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/models"
	"tierup/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProgress captures progress callbacks for assertions.
type recordingProgress struct {
	mu         sync.Mutex
	loginWaits int
	scrolls    int
	found      int
	items      []models.ImageRecord
	onItem     func(item models.ImageRecord, done, total int)
	onScroll   func(iteration int)
}

func (p *recordingProgress) LoginWaiting(elapsed, remaining time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginWaits++
}

func (p *recordingProgress) Scrolled(iteration int, height int64, stable int) {
	p.mu.Lock()
	fn := p.onScroll
	p.scrolls++
	p.mu.Unlock()
	if fn != nil {
		fn(iteration)
	}
}

func (p *recordingProgress) Found(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.found = total
}

func (p *recordingProgress) ItemFinished(item models.ImageRecord, done, total int) {
	p.mu.Lock()
	fn := p.onItem
	p.items = append(p.items, item)
	p.mu.Unlock()
	if fn != nil {
		fn(item, done, total)
	}
}

// newCDNServer serves image bytes for any path unless the path is listed
// in failures, which maps path suffix to a status code.
func newCDNServer(failures map[string]int) (*httptest.Server, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		for suffix, status := range failures {
			if strings.HasSuffix(r.URL.Path, suffix) {
				w.WriteHeader(status)
				return
			}
		}
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprintf(w, "image bytes for %s", r.URL.Path)
	}))
	return server, &calls
}

func libraryHTML(cdnURL string) string {
	return fmt.Sprintf(`
	<html><body class="page library">
	<div class="game">
		<picture>
			<source srcset="%[1]s/covers/hollow_knight.jpg 600w, %[1]s/covers/hollow_knight_300.jpg 300w">
			<img src="%[1]s/covers/hollow_knight_small.jpg" alt="Hollow Knight">
		</picture>
	</div>
	<div class="game"><img src="%[1]s/covers/celeste.jpg" alt="Celeste"></div>
	<div class="game"><img src="%[1]s/covers/CELESTE.jpg?cache=2" alt="Celeste Again"></div>
	<div class="game"><img src="%[1]s/shared/defaultappheader.png" alt=""></div>
	<div class="game"><img data-src="%[1]s/covers/hades.jpg" alt="Hades"></div>
	</body></html>`, cdnURL)
}

func newTestConfig(t *testing.T, libraryURL string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Library.URL = libraryURL
	cfg.Library.LoginPollInterval = config.Duration(5 * time.Millisecond)
	cfg.Library.LoginMaxWait = config.Duration(500 * time.Millisecond)
	cfg.Scroll.Pause = config.Duration(time.Millisecond)
	cfg.Scroll.MaxIterations = 10
	cfg.Download.OutputDir = t.TempDir()
	cfg.Download.Delay = config.Duration(time.Millisecond)
	cfg.Download.Timeout = config.Duration(5 * time.Second)
	cfg.Retry.InitialDelay = config.Duration(time.Millisecond)
	cfg.Retry.MaxDelay = config.Duration(5 * time.Millisecond)
	return cfg
}

func newTestCollector(t *testing.T, cfg *config.Config, session *browsertest.Session) *Collector {
	t.Helper()

	store, err := storage.NewManager(cfg.Download.OutputDir)
	require.NoError(t, err)

	fetcher := downloader.NewHTTPFetcher(cfg.Download.Timeout.Dur(), "", logger.NewNopLogger())
	return New(cfg, session, fetcher, store, logger.NewNopLogger())
}

func TestRunHappyPath(t *testing.T) {
	cdn, cdnCalls := newCDNServer(nil)
	defer cdn.Close()

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000, 2000, 2000, 2000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return libraryHTML(cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	progress := &recordingProgress{}
	collector.SetProgress(progress)

	result, err := collector.Run(context.Background(), "run-1")
	require.NoError(t, err)

	// The duplicate Celeste URL collapses, the placeholder is skipped.
	assert.Equal(t, 3, result.Found)
	assert.Equal(t, 3, result.Downloaded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 4, result.ScrollIterations)
	assert.Equal(t, "run-1", result.RunID)
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.FinishedAt.IsZero())

	// Page order survives into the result.
	require.Len(t, result.Items, 3)
	assert.Equal(t, "Hollow Knight", result.Items[0].Title)
	assert.Equal(t, "Celeste", result.Items[1].Title)
	assert.Equal(t, "Hades", result.Items[2].Title)
	for i, item := range result.Items {
		assert.Equal(t, i+1, item.ID)
		assert.Equal(t, models.StatusDownloaded, item.Status)
		assert.Equal(t, 1, item.Attempts)
		assert.NotEmpty(t, item.Filename)
	}

	// The picture source URL won over the img fallback.
	assert.Contains(t, result.Items[0].SourceURL, "hollow_knight.jpg")

	// Files actually landed.
	for _, item := range result.Items {
		data, err := os.ReadFile(item.LocalPath)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		assert.Equal(t, int64(len(data)), item.Size)
	}

	assert.Equal(t, []string{"https://store.example.com/account/library"}, session.Navigations)
	assert.Equal(t, 4, session.Scrolls)
	assert.Equal(t, 3, progress.found)
	assert.Len(t, progress.items, 3)
	assert.Equal(t, 4, progress.scrolls)

	// Deduplication kept the CDN traffic to one fetch per unique cover.
	assert.Equal(t, int32(3), atomic.LoadInt32(cdnCalls))
}

func TestRunWaitsOutLoginWall(t *testing.T) {
	cdn, _ := newCDNServer(nil)
	defer cdn.Close()

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence(
			"page login_wall",
			"page login_wall",
			"page library",
		),
		HeightFunc: browsertest.HeightSequence(1000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return libraryHTML(cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	progress := &recordingProgress{}
	collector.SetProgress(progress)

	result, err := collector.Run(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Downloaded)
	assert.Greater(t, progress.loginWaits, 0, "expected login waiting callbacks")
}

func TestRunLoginTimeout(t *testing.T) {
	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page login_wall"),
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	cfg.Library.LoginMaxWait = config.Duration(40 * time.Millisecond)
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-3")
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err), "a wall that never clears is fatal")
	assert.Equal(t, 0, result.Found)
}

func TestRunEmptyResult(t *testing.T) {
	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return "<html><body class='page library'><p>empty shelf</p></body></html>", nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-4")
	require.Error(t, err)
	assert.True(t, errors.IsEmptyResult(err))
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Found)
	assert.True(t, result.Empty())
}

func TestRunPartialFailure(t *testing.T) {
	// celeste.jpg is gone for good; the rest download fine.
	cdn, _ := newCDNServer(map[string]int{"celeste.jpg": http.StatusNotFound})
	defer cdn.Close()

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return libraryHTML(cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-5")
	require.NoError(t, err, "one bad item must not fail the run")

	assert.Equal(t, 2, result.Downloaded)
	assert.Equal(t, 1, result.Failed)

	var failed *models.ImageRecord
	for i := range result.Items {
		if result.Items[i].Status == models.StatusFailed {
			failed = &result.Items[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "Celeste", failed.Title)
	assert.NotEmpty(t, failed.LastError)
	assert.Equal(t, 1, failed.Attempts, "404 is permanent, no retries expected")
}

func TestRunRetriesTransientFailures(t *testing.T) {
	// hades.jpg fails twice with 503 before succeeding.
	var hadesCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "hades.jpg") {
			if atomic.AddInt32(&hadesCalls, 1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("image bytes"))
	}))
	defer server.Close()

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return fmt.Sprintf(`<html><body>
				<img src="%[1]s/covers/hades.jpg" alt="Hades">
			</body></html>`, server.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-6")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 3, result.Items[0].Attempts)
}

func TestRunCancelledDuringScroll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000, 2000, 3000, 4000, 5000),
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	progress := &recordingProgress{}
	progress.onScroll = func(iteration int) {
		if iteration == 2 {
			cancel()
		}
	}
	collector.SetProgress(progress)

	result, err := collector.Run(ctx, "run-7")
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	assert.Equal(t, 2, result.ScrollIterations)
}

func TestRunCancelledBetweenDownloads(t *testing.T) {
	cdn, _ := newCDNServer(nil)
	defer cdn.Close()

	ctx, cancel := context.WithCancel(context.Background())

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000),
		HTMLFunc: func(c context.Context) (string, error) {
			return libraryHTML(cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	progress := &recordingProgress{}
	progress.onItem = func(item models.ImageRecord, done, total int) {
		if done == 1 {
			cancel()
		}
	}
	collector.SetProgress(progress)

	result, err := collector.Run(ctx, "run-8")
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))

	// The first item completed and stands; the rest were never started.
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, models.StatusDownloaded, result.Items[0].Status)
	for _, item := range result.Items[1:] {
		assert.Equal(t, models.StatusPending, item.Status)
	}
}

func TestRunScrollBudgetExhausted(t *testing.T) {
	cdn, _ := newCDNServer(nil)
	defer cdn.Close()

	// The page keeps growing; the scroll loop gives up after the budget
	// and the run continues with what is there.
	var height int64
	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc: func(ctx context.Context) (int64, error) {
			height += 500
			return height, nil
		},
		HTMLFunc: func(ctx context.Context) (string, error) {
			return libraryHTML(cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	cfg.Scroll.MaxIterations = 5
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-9")
	require.NoError(t, err)
	assert.Equal(t, 5, result.ScrollIterations)
	assert.Equal(t, 3, result.Downloaded)
}

func TestRunKeepsUnparseableURL(t *testing.T) {
	cdn, _ := newCDNServer(nil)
	defer cdn.Close()

	// A relative URL cannot be canonicalized; the item stays in the list
	// under its raw key and its download fails on its own.
	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return fmt.Sprintf(`<html><body>
				<img src="/images/relative.jpg" alt="Relative">
				<img src="%s/covers/real.jpg" alt="Real">
			</body></html>`, cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-12")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, models.StatusFailed, result.Items[0].Status)
	assert.Equal(t, "Relative", result.Items[0].Title)
}

func TestRunNavigationFailure(t *testing.T) {
	session := &browsertest.Session{
		NavigateFunc: func(ctx context.Context, url string) error {
			return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED")
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	_, err := collector.Run(context.Background(), "run-10")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNavigation, errors.TypeOf(err))
}

func TestRunSavesIntoOutputDir(t *testing.T) {
	cdn, _ := newCDNServer(nil)
	defer cdn.Close()

	session := &browsertest.Session{
		BodyClassFunc: browsertest.ClassSequence("page library"),
		HeightFunc:    browsertest.HeightSequence(1000),
		HTMLFunc: func(ctx context.Context) (string, error) {
			return libraryHTML(cdn.URL), nil
		},
	}

	cfg := newTestConfig(t, "https://store.example.com/account/library")
	collector := newTestCollector(t, cfg, session)

	result, err := collector.Run(context.Background(), "run-11")
	require.NoError(t, err)

	for _, item := range result.Items {
		assert.Equal(t, cfg.Download.OutputDir, filepath.Dir(item.LocalPath))
	}
}
