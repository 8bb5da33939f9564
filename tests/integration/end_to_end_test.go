package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tierup/pkg/browser/browsertest"
	"tierup/pkg/config"
	"tierup/pkg/logger"
	"tierup/pkg/models"
	"tierup/pkg/report"
	"tierup/pkg/run"
)

// newTestConfig shrinks every wait so a full run finishes in
// milliseconds. The output directory is fresh per test.
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
	cfg.Upload.Delay = config.Duration(time.Millisecond)
	cfg.Upload.ConfirmTimeout = config.Duration(100 * time.Millisecond)
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = config.Duration(time.Millisecond)
	cfg.Retry.MaxDelay = config.Duration(5 * time.Millisecond)
	return cfg
}

// eventRecorder captures every run event for later inspection.
type eventRecorder struct {
	mu     sync.Mutex
	events []run.Event
}

func (r *eventRecorder) Emit(ev run.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []run.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]run.Event, len(r.events))
	copy(out, r.events)
	return out
}

// phases returns the distinct phase sequence the recorder observed.
func (r *eventRecorder) phases() []run.Phase {
	var out []run.Phase
	for _, ev := range r.all() {
		if len(out) == 0 || out[len(out)-1] != ev.Phase {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func itemByTitle(t *testing.T, items []models.ImageRecord, title string) models.ImageRecord {
	t.Helper()
	for _, item := range items {
		if item.Title == title {
			return item
		}
	}
	t.Fatalf("no item titled %q in %d items", title, len(items))
	return models.ImageRecord{}
}

func assertCoverOnDisk(t *testing.T, dir, name, cdnPath string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("cover %s not on disk: %v", name, err)
	}
	if !bytes.Equal(data, CoverBytes(cdnPath)) {
		t.Errorf("cover %s holds %q, want the CDN bytes for %s", name, data, cdnPath)
	}
}

// TestFullRunEndToEnd pushes one library through the whole pipeline:
// scroll, extract, dedup, download, upload, summary. The page mixes every
// markup variant plus a duplicate listing and a placeholder tile.
func TestFullRunEndToEnd(t *testing.T) {
	front := NewFakeStorefront()
	defer front.Close()

	games := []Game{
		{Title: "Hollow Knight", Image: "/covers/hollow.jpg", Render: RenderSrcset},
		{Title: "Celeste", Image: "/covers/celeste.jpg"},
		{Title: "Outer Wilds", Image: "/covers/outerwilds.png", Render: RenderLazy},
		{Title: "Hades", Image: "/covers/hades.jpg"},
		// The same cover again behind a cache-busting query string.
		{Title: "Hollow Knight GOTY", Image: "/covers/hollow.jpg?t=1700000000"},
		// Platform furniture, not a cover.
		{Title: "", Image: "/covers/defaultappheader.png"},
	}

	cfg := newTestConfig(t, front.URL()+"/account/library")
	session := front.NewSession(games)
	testlog := logger.NewTestLogger()
	events := &eventRecorder{}
	emitter := run.MultiEmitter{events, run.NewLogEmitter(testlog)}

	runner := run.NewRunner(cfg, &browsertest.Launcher{Session: session}, testlog, emitter)
	summary, err := runner.Run(context.Background(), run.ModeFull)
	if err != nil {
		t.Fatalf("full run failed: %v", err)
	}
	if len(summary.RunID) != 36 {
		t.Errorf("run ID %q is not a UUID", summary.RunID)
	}

	result := summary.Result
	if result == nil {
		t.Fatal("summary has no collection result")
	}
	if result.Found != 4 {
		t.Errorf("found %d covers, want 4 after dedup", result.Found)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped %d covers, want 1 placeholder", result.Skipped)
	}
	if result.Downloaded != 4 || result.Failed != 0 {
		t.Errorf("downloaded %d / failed %d, want 4 / 0", result.Downloaded, result.Failed)
	}

	upload := summary.Upload
	if upload == nil {
		t.Fatal("summary has no upload outcome")
	}
	if upload.Attempted != 4 || upload.Uploaded != 4 || upload.Failed != 0 {
		t.Errorf("upload attempted %d / uploaded %d / failed %d, want 4 / 4 / 0",
			upload.Attempted, upload.Uploaded, upload.Failed)
	}

	// The files hold exactly what the CDN served.
	dir := cfg.Download.OutputDir
	assertCoverOnDisk(t, dir, "Hollow_Knight.jpg", "/covers/hollow.jpg")
	assertCoverOnDisk(t, dir, "Celeste.jpg", "/covers/celeste.jpg")
	assertCoverOnDisk(t, dir, "Outer_Wilds.png", "/covers/outerwilds.png")
	assertCoverOnDisk(t, dir, "Hades.jpg", "/covers/hades.jpg")

	// Dedup collapsed the duplicate before the fetch, and the srcset
	// variant won over the thumbnail next to it.
	if hits := front.Hits("/covers/hollow.jpg"); hits != 1 {
		t.Errorf("duplicate cover fetched %d times, want 1", hits)
	}
	if hits := front.Hits("/thumbs/covers/hollow.jpg"); hits != 0 {
		t.Errorf("thumbnail fetched %d times, want 0", hits)
	}

	// The builder received the saved files, in page order, after the
	// orientation was picked.
	if got := session.Values[cfg.Upload.OrientationSelect]; got != cfg.Upload.Orientation {
		t.Errorf("orientation set to %q, want %q", got, cfg.Upload.Orientation)
	}
	if len(session.Uploads) != 4 {
		t.Fatalf("builder received %d uploads, want 4", len(session.Uploads))
	}
	if got := session.Uploads[0][0]; got != filepath.Join(dir, "Hollow_Knight.jpg") {
		t.Errorf("first upload was %q, want the first cover in page order", got)
	}

	// Phase flow and event stream.
	wantPhases := []run.Phase{run.PhaseScraping, run.PhaseUploading, run.PhaseDone}
	if got := events.phases(); len(got) != len(wantPhases) {
		t.Errorf("phases %v, want %v", got, wantPhases)
	} else {
		for i := range got {
			if got[i] != wantPhases[i] {
				t.Errorf("phases %v, want %v", got, wantPhases)
				break
			}
		}
	}
	for i, ev := range events.all() {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d, the stream must be gapless", i, ev.Seq)
		}
		if ev.RunID != summary.RunID {
			t.Fatalf("event %d carries run ID %q, want %q", i, ev.RunID, summary.RunID)
		}
	}
	if !testlog.HasMessage("Found 4 covers") {
		t.Error("the event log never announced the extraction count")
	}

	// The summary landed next to the covers and reads back.
	saved, err := report.Load(dir)
	if err != nil {
		t.Fatalf("reading the saved summary: %v", err)
	}
	if saved == nil || saved.RunID != summary.RunID {
		t.Fatalf("saved summary does not match the run: %+v", saved)
	}
	if saved.Upload == nil || saved.Upload.Uploaded != 4 {
		t.Errorf("saved summary lost the upload outcome: %+v", saved.Upload)
	}
	for _, item := range summary.Items() {
		if item.Status != models.StatusUploaded {
			t.Errorf("item %q ended as %s, want uploaded", item.Title, item.Status)
		}
	}

	// The run ended with uploads, so the window stays for the human.
	if !session.Detached || session.Closed {
		t.Error("the browser window should be handed over open after uploads")
	}
}

// TestCollectThenPublishLater splits the pipeline across two invocations
// sharing an output directory, the way the collect and publish commands
// are used: collect today, arrange tiers tomorrow.
func TestCollectThenPublishLater(t *testing.T) {
	front := NewFakeStorefront()
	defer front.Close()

	games := []Game{
		{Title: "Disco Elysium", Image: "/covers/disco.jpg"},
		{Title: "Return of the Obra Dinn", Image: "/covers/obradinn.jpg", Render: RenderSrcset},
	}
	cfg := newTestConfig(t, front.URL()+"/account/library")

	collectSession := front.NewSession(games)
	collector := run.NewRunner(cfg, &browsertest.Launcher{Session: collectSession}, logger.NewNopLogger(), nil)
	first, err := collector.Run(context.Background(), run.ModeCollect)
	if err != nil {
		t.Fatalf("collect run failed: %v", err)
	}
	if first.Result.Downloaded != 2 {
		t.Fatalf("collect downloaded %d covers, want 2", first.Result.Downloaded)
	}
	if n := collectSession.UploadCount(); n != 0 {
		t.Errorf("collect pushed %d uploads, want none", n)
	}
	if !collectSession.Closed || collectSession.Detached {
		t.Error("a collect-only browser window should close, there is nothing to finish by hand")
	}
	if !report.Exists(cfg.Download.OutputDir) {
		t.Fatal("collect did not leave a summary for the later publish")
	}

	// A fresh runner and browser, as after a process restart.
	publishSession := front.NewSession(nil)
	publisher := run.NewRunner(cfg, &browsertest.Launcher{Session: publishSession}, logger.NewNopLogger(), nil)
	second, err := publisher.Run(context.Background(), run.ModePublish)
	if err != nil {
		t.Fatalf("publish run failed: %v", err)
	}
	if second.RunID == first.RunID {
		t.Error("the publish run must mint its own run ID")
	}
	if second.Upload == nil || second.Upload.Uploaded != 2 {
		t.Fatalf("publish uploaded %v, want both covers", second.Upload)
	}
	if second.Result == nil || second.Result.Found != 2 {
		t.Error("the earlier collection should travel with the publish summary")
	}

	// Publish goes straight to the builder.
	if len(publishSession.Navigations) != 1 || publishSession.Navigations[0] != cfg.Upload.TargetURL {
		t.Errorf("publish navigated %v, want only the builder page", publishSession.Navigations)
	}

	for _, item := range second.Items() {
		if item.Status != models.StatusUploaded {
			t.Errorf("item %q ended as %s, want uploaded", item.Title, item.Status)
		}
	}

	saved, err := report.Load(cfg.Download.OutputDir)
	if err != nil {
		t.Fatalf("reading the saved summary: %v", err)
	}
	if saved.RunID != second.RunID {
		t.Errorf("the publish run should replace the summary, found run %q", saved.RunID)
	}
}

// TestConfigFileDrivesACollectRun loads the configuration the way the CLI
// does, from a YAML file with environment and flag overrides on top, and
// checks the merged settings actually steer the engine.
func TestConfigFileDrivesACollectRun(t *testing.T) {
	front := NewFakeStorefront()
	defer front.Close()

	outputDir := t.TempDir()
	configDir := t.TempDir()
	t.Setenv("HOME", configDir)
	t.Setenv("TIERUP_MAX_SCROLLS", "7")

	configYAML := fmt.Sprintf(`library:
  url: %s/account/library
  login_poll_interval: 5ms
  login_max_wait: 500ms
scroll:
  pause: 1ms
  max_iterations: 20
download:
  output_dir: %s
  delay: 40ms
  skip_names: ["defaultappheader.png", "spacer.gif"]
retry:
  initial_delay: 1ms
  max_delay: 5ms
`, front.URL(), outputDir)
	configPath := filepath.Join(configDir, "tierup.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := config.Load(configPath, map[string]interface{}{
		"delay": 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Scroll.MaxIterations != 7 {
		t.Errorf("max iterations %d, the environment should override the file's 20", cfg.Scroll.MaxIterations)
	}
	if cfg.Download.Delay.Dur() != 2*time.Millisecond {
		t.Errorf("download delay %s, the flag should override the file's 40ms", cfg.Download.Delay.Dur())
	}
	if len(cfg.Download.SkipNames) != 2 {
		t.Fatalf("skip names %v, want the file's two entries", cfg.Download.SkipNames)
	}

	games := []Game{
		{Title: "Slay the Spire", Image: "/covers/spire.jpg"},
		{Title: "", Image: "/art/spacer.gif"},
	}
	session := front.NewSession(games)
	runner := run.NewRunner(cfg, &browsertest.Launcher{Session: session}, logger.NewNopLogger(), nil)
	summary, err := runner.Run(context.Background(), run.ModeCollect)
	if err != nil {
		t.Fatalf("collect run failed: %v", err)
	}
	if summary.Result.Skipped != 1 {
		t.Errorf("skipped %d, the configured spacer.gif should be filtered", summary.Result.Skipped)
	}
	if summary.Result.Downloaded != 1 {
		t.Errorf("downloaded %d covers, want 1", summary.Result.Downloaded)
	}
	assertCoverOnDisk(t, outputDir, "Slay_the_Spire.jpg", "/covers/spire.jpg")
}
