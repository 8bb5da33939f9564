package publish

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierup/pkg/browser/browsertest"
	"tierup/pkg/config"
	tierr "tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/models"
)

// builderSession fakes the builder page: a tile appears for every file the
// input accepts, and Count reports the current tile total. Paths containing
// failSubstring are rejected by the input.
func builderSession(failSubstring string) (*browsertest.Session, *int32) {
	var tiles int32
	s := &browsertest.Session{}
	s.CountFunc = func(ctx context.Context, selector string) (int, error) {
		return int(atomic.LoadInt32(&tiles)), nil
	}
	s.SetFilesFunc = func(ctx context.Context, selector string, paths []string) error {
		if failSubstring != "" && strings.Contains(paths[0], failSubstring) {
			return fmt.Errorf("file input rejected %s", paths[0])
		}
		atomic.AddInt32(&tiles, 1)
		return nil
	}
	return s, &tiles
}

func newPublishConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Upload.Delay = config.Duration(time.Millisecond)
	cfg.Upload.ConfirmTimeout = config.Duration(50 * time.Millisecond)
	cfg.Browser.NavTimeout = config.Duration(100 * time.Millisecond)
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = config.Duration(time.Millisecond)
	cfg.Retry.MaxDelay = config.Duration(5 * time.Millisecond)
	return cfg
}

func newTestPublisher(t *testing.T, cfg *config.Config, session *browsertest.Session) *Publisher {
	t.Helper()
	p := New(cfg, session, logger.NewNopLogger())
	p.confirmPoll = time.Millisecond
	return p
}

func downloadedItem(id int, title, path string) models.ImageRecord {
	return models.ImageRecord{
		ID:        id,
		Title:     title,
		SourceURL: "https://cdn.example.com/" + strings.ToLower(title) + ".jpg",
		LocalPath: path,
		Status:    models.StatusDownloaded,
		Attempts:  2,
	}
}

type recordingProgress struct {
	mu    sync.Mutex
	items []models.ImageRecord
	dones []int
}

func (r *recordingProgress) ItemFinished(item models.ImageRecord, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	r.dones = append(r.dones, done)
}

func TestPublishHappyPath(t *testing.T) {
	session, tiles := builderSession("")
	cfg := newPublishConfig(t)
	publisher := newTestPublisher(t, cfg, session)
	progress := &recordingProgress{}
	publisher.SetProgress(progress)

	items := []models.ImageRecord{
		downloadedItem(1, "Hollow Knight", "/covers/Hollow_Knight.jpg"),
		downloadedItem(2, "Celeste", "/covers/Celeste.png"),
		{ID: 3, Title: "Broken", SourceURL: "https://cdn.example.com/broken.jpg", Status: models.StatusFailed},
		downloadedItem(4, "Hades", "/covers/Hades.jpg"),
	}

	outcome, err := publisher.Publish(context.Background(), "run-7", items)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, "run-7", outcome.RunID)
	assert.Equal(t, cfg.Upload.TargetURL, outcome.TargetURL)
	assert.Equal(t, 3, outcome.Attempted)
	assert.Equal(t, 3, outcome.Uploaded)
	assert.Equal(t, 0, outcome.Failed)
	assert.False(t, outcome.FinishedAt.IsZero())

	// The failed download never reaches the builder.
	require.Len(t, outcome.Items, 3)
	for i, want := range []string{"Hollow Knight", "Celeste", "Hades"} {
		assert.Equal(t, want, outcome.Items[i].Title)
		assert.Equal(t, models.StatusUploaded, outcome.Items[i].Status)
		assert.Equal(t, 1, outcome.Items[i].Attempts, "upload attempts restart per phase")
	}

	// One file per SetFiles call, in batch order.
	require.Equal(t, 3, session.UploadCount())
	assert.Equal(t, []string{"/covers/Hollow_Knight.jpg"}, session.Uploads[0])
	assert.Equal(t, []string{"/covers/Celeste.png"}, session.Uploads[1])
	assert.Equal(t, []string{"/covers/Hades.jpg"}, session.Uploads[2])
	assert.Equal(t, int32(3), atomic.LoadInt32(tiles))

	assert.Equal(t, []string{cfg.Upload.TargetURL}, session.Navigations)
	assert.Equal(t, []string{cfg.Upload.FileInput}, session.WaitedFor)
	assert.Equal(t, []string{cfg.Upload.FileInput}, session.Shown)
	assert.Equal(t, cfg.Upload.Orientation, session.Values[cfg.Upload.OrientationSelect])

	require.Len(t, progress.items, 3)
	assert.Equal(t, []int{1, 2, 3}, progress.dones)
}

func TestPublishFallsBackToGenericInput(t *testing.T) {
	session, _ := builderSession("")
	cfg := newPublishConfig(t)
	session.WaitVisibleFunc = func(ctx context.Context, selector string, timeout time.Duration) error {
		if selector == cfg.Upload.FileInput {
			return fmt.Errorf("selector never became visible")
		}
		return nil
	}
	publisher := newTestPublisher(t, cfg, session)

	outcome, err := publisher.Publish(context.Background(), "run-8", []models.ImageRecord{
		downloadedItem(1, "Celeste", "/covers/Celeste.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Uploaded)
	assert.Equal(t, []string{cfg.Upload.FileInput, cfg.Upload.FileInputFallback}, session.WaitedFor)
	assert.Equal(t, []string{cfg.Upload.FileInputFallback}, session.Shown)
}

func TestPublishNoUsableFileInput(t *testing.T) {
	session, _ := builderSession("")
	session.WaitVisibleFunc = func(ctx context.Context, selector string, timeout time.Duration) error {
		return fmt.Errorf("selector never became visible")
	}
	publisher := newTestPublisher(t, newPublishConfig(t), session)

	outcome, err := publisher.Publish(context.Background(), "run-9", []models.ImageRecord{
		downloadedItem(1, "Celeste", "/covers/Celeste.png"),
	})
	require.Error(t, err)
	assert.True(t, tierr.IsEnvironment(err))
	assert.Equal(t, 0, outcome.Attempted)
	assert.Equal(t, 0, session.UploadCount())
}

func TestPublishOrientationFailureIsNotFatal(t *testing.T) {
	session, _ := builderSession("")
	session.SetValueFunc = func(ctx context.Context, selector, value string) error {
		return fmt.Errorf("select is missing")
	}
	publisher := newTestPublisher(t, newPublishConfig(t), session)

	outcome, err := publisher.Publish(context.Background(), "run-10", []models.ImageRecord{
		downloadedItem(1, "Celeste", "/covers/Celeste.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Uploaded)
}

func TestPublishPartialFailure(t *testing.T) {
	session, _ := builderSession("bad")
	cfg := newPublishConfig(t)
	publisher := newTestPublisher(t, cfg, session)

	outcome, err := publisher.Publish(context.Background(), "run-11", []models.ImageRecord{
		downloadedItem(1, "Bad Apple", "/covers/bad_apple.jpg"),
		downloadedItem(2, "Celeste", "/covers/Celeste.png"),
	})
	require.NoError(t, err, "one failed item must not abort the batch")

	assert.Equal(t, 2, outcome.Attempted)
	assert.Equal(t, 1, outcome.Uploaded)
	assert.Equal(t, 1, outcome.Failed)

	bad := outcome.Items[0]
	assert.Equal(t, models.StatusUploadFailed, bad.Status)
	assert.Equal(t, cfg.Retry.MaxAttempts, bad.Attempts)
	assert.Contains(t, bad.LastError, "failed to attach file")

	good := outcome.Items[1]
	assert.Equal(t, models.StatusUploaded, good.Status)
}

func TestPublishConfirmationTimeout(t *testing.T) {
	// The input accepts the file but no tile ever appears.
	session := &browsertest.Session{
		CountFunc: func(ctx context.Context, selector string) (int, error) {
			return 0, nil
		},
	}
	cfg := newPublishConfig(t)
	publisher := newTestPublisher(t, cfg, session)

	outcome, err := publisher.Publish(context.Background(), "run-12", []models.ImageRecord{
		downloadedItem(1, "Celeste", "/covers/Celeste.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, models.StatusUploadFailed, outcome.Items[0].Status)
	assert.Equal(t, cfg.Retry.MaxAttempts, outcome.Items[0].Attempts)
	assert.Contains(t, outcome.Items[0].LastError, "not confirmed")
	// Every attempt re-sent the file.
	assert.Equal(t, cfg.Retry.MaxAttempts, session.UploadCount())
}

func TestPublishConfirmationOnRetry(t *testing.T) {
	// The first SetFiles is swallowed by the page; the retry lands.
	var calls, tiles int32
	session := &browsertest.Session{
		CountFunc: func(ctx context.Context, selector string) (int, error) {
			return int(atomic.LoadInt32(&tiles)), nil
		},
		SetFilesFunc: func(ctx context.Context, selector string, paths []string) error {
			if atomic.AddInt32(&calls, 1) > 1 {
				atomic.AddInt32(&tiles, 1)
			}
			return nil
		},
	}
	publisher := newTestPublisher(t, newPublishConfig(t), session)

	outcome, err := publisher.Publish(context.Background(), "run-13", []models.ImageRecord{
		downloadedItem(1, "Celeste", "/covers/Celeste.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Uploaded)
	assert.Equal(t, 2, outcome.Items[0].Attempts)
	assert.Equal(t, models.StatusUploaded, outcome.Items[0].Status)
}

func TestPublishCancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session, _ := builderSession("")
	base := session.SetFilesFunc
	session.SetFilesFunc = func(c context.Context, selector string, paths []string) error {
		err := base(c, selector, paths)
		cancel()
		return err
	}
	publisher := newTestPublisher(t, newPublishConfig(t), session)

	outcome, err := publisher.Publish(ctx, "run-14", []models.ImageRecord{
		downloadedItem(1, "Hollow Knight", "/covers/Hollow_Knight.jpg"),
		downloadedItem(2, "Celeste", "/covers/Celeste.png"),
		downloadedItem(3, "Hades", "/covers/Hades.jpg"),
	})
	require.Error(t, err)
	assert.True(t, tierr.IsCancelled(err))

	// The first upload was already confirmed; the rest were never tried.
	assert.Equal(t, 1, outcome.Uploaded)
	assert.Equal(t, models.StatusUploaded, outcome.Items[0].Status)
	assert.Equal(t, models.StatusDownloaded, outcome.Items[1].Status)
	assert.Equal(t, models.StatusDownloaded, outcome.Items[2].Status)
	assert.Equal(t, 1, session.UploadCount())
}

func TestPublishNothingToUpload(t *testing.T) {
	session, _ := builderSession("")
	publisher := newTestPublisher(t, newPublishConfig(t), session)

	outcome, err := publisher.Publish(context.Background(), "run-15", []models.ImageRecord{
		{ID: 1, Title: "Broken", Status: models.StatusFailed},
		{ID: 2, Title: "Pathless", Status: models.StatusDownloaded},
	})
	require.Error(t, err)
	assert.True(t, tierr.IsEmptyResult(err))
	assert.Empty(t, outcome.Items)
	assert.Empty(t, session.Navigations, "no point opening the builder for an empty batch")
}

func TestPublishNavigationFailure(t *testing.T) {
	session, _ := builderSession("")
	session.NavigateFunc = func(ctx context.Context, url string) error {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED")
	}
	publisher := newTestPublisher(t, newPublishConfig(t), session)

	outcome, err := publisher.Publish(context.Background(), "run-16", []models.ImageRecord{
		downloadedItem(1, "Celeste", "/covers/Celeste.png"),
	})
	require.Error(t, err)
	assert.Equal(t, tierr.ErrorTypeNavigation, tierr.TypeOf(err))
	assert.Equal(t, 0, outcome.Attempted)
}

func TestUploadableFilter(t *testing.T) {
	items := []models.ImageRecord{
		{ID: 1, Title: "A", Status: models.StatusDownloaded, LocalPath: "/covers/a.jpg", Attempts: 3, LastError: "old"},
		{ID: 2, Title: "B", Status: models.StatusFailed, LocalPath: "/covers/b.jpg"},
		{ID: 3, Title: "C", Status: models.StatusPending},
		{ID: 4, Title: "D", Status: models.StatusDownloaded},
		{ID: 5, Title: "E", Status: models.StatusDownloaded, LocalPath: "/covers/e.jpg"},
	}

	got := uploadable(items)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Title)
	assert.Equal(t, "E", got[1].Title)
	assert.Zero(t, got[0].Attempts, "attempt counts restart for the upload phase")
	assert.Empty(t, got[0].LastError)
}
