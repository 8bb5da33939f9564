package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tierup/pkg/browser"
	"tierup/pkg/config"
	"tierup/pkg/errors"
	"tierup/pkg/logger"
	"tierup/pkg/metrics"
	"tierup/pkg/report"
	"tierup/pkg/run"
	"tierup/pkg/ui"
	"tierup/pkg/ui/tui"
)

var (
	// Run command flags
	libraryURL  string
	headless    bool
	delay       time.Duration
	maxScrolls  int
	metricsAddr string
	targetURL   string
	keepOpen    bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect covers and publish them in one browser session",
	Long: `Run both halves back to back: open the library page, collect every
cover, then upload the downloaded covers to the tier list builder in
the same browser session.

If the library page shows a login wall, the run waits for you to sign
in in the browser window and resumes on its own.`,
	Example: `  # Collect and publish with settings from tierup.yaml
  tierup run

  # Point at a different library page
  tierup run --library-url https://store.example.com/account/library

  # Watch the live dashboard instead of log lines
  tierup run --tui

  # Expose Prometheus metrics while the run is going
  tierup run --metrics-addr :9090`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		executeRun(cmd, run.ModeFull)
	},
}

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect covers from the library page without publishing",
	Long: `Collect covers only: scroll the library page until it stops growing,
download every cover into the output directory and write a summary
file next to them. A later 'tierup publish' picks the covers up from
there.`,
	Example: `  # Collect into the default covers directory
  tierup collect

  # Collect somewhere else, slower
  tierup collect --output-dir ./shelf --delay 2s`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		executeRun(cmd, run.ModeCollect)
	},
}

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload previously collected covers to the tier list builder",
	Long: `Publish covers collected by an earlier run. The item list comes from
the summary file in the output directory, or from the image files
themselves when no summary is present.`,
	Example: `  # Publish whatever the last collect left behind
  tierup publish

  # Publish a directory of images that has no summary file
  tierup publish --output-dir ./shelf`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		executeRun(cmd, run.ModePublish)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(publishCmd)

	for _, cmd := range []*cobra.Command{runCmd, collectCmd} {
		cmd.Flags().StringVar(&libraryURL, "library-url", "", "storefront library page to collect from")
		cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window (no manual login possible)")
		cmd.Flags().DurationVar(&delay, "delay", 0, "pause between downloads (default 500ms)")
		cmd.Flags().IntVar(&maxScrolls, "max-scrolls", 0, "scroll iteration cap (default 50)")
		cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	}

	for _, cmd := range []*cobra.Command{runCmd, publishCmd} {
		cmd.Flags().StringVar(&targetURL, "target-url", "", "tier list builder page to upload to")
		cmd.Flags().BoolVar(&keepOpen, "keep-open", true, "leave the browser window open after publishing")
	}

	publishCmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	publishCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// buildFlags collects the command line overrides for config.Load.
func buildFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if libraryURL != "" {
		flags["library-url"] = libraryURL
	}
	if outputDir != "" {
		flags["output-dir"] = outputDir
	}
	if targetURL != "" {
		flags["target-url"] = targetURL
	}
	if delay > 0 {
		flags["delay"] = delay
	}
	if maxScrolls > 0 {
		flags["max-scrolls"] = maxScrolls
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}
	if cmd.Flags().Changed("keep-open") {
		flags["keep-open"] = keepOpen
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}
	return flags
}

func executeRun(cmd *cobra.Command, mode run.Mode) {
	cfg, err := config.Load(configFile, buildFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()

	if !useTUI {
		if mode != run.ModePublish {
			ui.PrintInfo("Library", cfg.Library.URL)
		}
		ui.PrintInfo("Covers", cfg.Download.OutputDir)
		if mode != run.ModeCollect {
			ui.PrintInfo("Builder", cfg.Upload.TargetURL)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	stopMetrics := m.Serve(cfg.Metrics.Addr, log)
	shutdownMetrics := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := stopMetrics(ctx); err != nil {
			log.WithError(err).Debug("Metrics server shutdown failed")
		}
	}

	launcher := &browser.Launcher{
		Headless:     cfg.Browser.Headless,
		UserAgent:    cfg.Browser.UserAgent,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		OpTimeout:    cfg.Browser.NavTimeout.Dur(),
	}

	emitter := run.MultiEmitter{run.NewThrottledEmitter(run.NewLogEmitter(log), time.Second)}
	if m != nil {
		emitter = append(emitter, metrics.NewEmitterAdapter(m))
	}
	if cfg.Notifications.Enabled {
		notifier := ui.NewNotifier()
		var loginNudged bool
		emitter = append(emitter, run.EmitterFunc(func(ev run.Event) {
			if ev.Phase != run.PhaseWaitingLogin || loginNudged {
				return
			}
			loginNudged = true
			go notifier.NotifyLoginWait(cfg.Notifications)
		}))
	}

	var runner *run.Runner
	var dash *tui.Dashboard
	if useTUI {
		dash = tui.New(func() {
			if runner != nil {
				runner.Cancel()
			}
		})
		emitter = append(emitter, dash)
	}

	runner = run.NewRunner(cfg, launcher, log, emitter)

	// First interrupt cancels at the next checkpoint, second one bails out
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("Interrupt received, finishing the item in flight before stopping")
		runner.Cancel()
		<-sigCh
		os.Exit(130)
	}()

	var summary *report.Summary
	var runErr error
	if useTUI {
		done := make(chan struct{})
		go func() {
			summary, runErr = runner.Run(context.Background(), mode)
			dash.Finish(runErr)
			close(done)
		}()
		if err := dash.Run(); err != nil {
			log.WithError(err).Error("Dashboard failed")
		}
		<-done
	} else {
		summary, runErr = runner.Run(context.Background(), mode)
	}

	shutdownMetrics()

	if code := reportOutcome(cfg, summary, runErr); code != 0 {
		os.Exit(code)
	}
}

// reportOutcome prints the final state of the run and returns the
// process exit code.
func reportOutcome(cfg *config.Config, summary *report.Summary, err error) int {
	notifier := ui.NewNotifier()

	if err != nil {
		if errors.IsCancelled(err) {
			ui.PrintWarning("Run cancelled")
			ui.PrintOutcomeTable(summary.Items())
			return 130
		}
		ui.PrintError("Run failed", err.Error())
		ui.PrintOutcomeTable(summary.Items())
		notifier.NotifyRunEnd(cfg.Notifications, run.PhaseFailed, err.Error())
		return 1
	}

	detail := summaryDetail(summary)
	ui.PrintSuccess(detail)
	ui.PrintOutcomeTable(summary.Items())
	if report.Exists(cfg.Download.OutputDir) {
		ui.PrintDim("Summary: " + filepath.Join(cfg.Download.OutputDir, report.SummaryFileName))
	}
	notifier.NotifyRunEnd(cfg.Notifications, run.PhaseDone, detail)
	return 0
}

func summaryDetail(summary *report.Summary) string {
	switch {
	case summary == nil:
		return "Run complete"
	case summary.Upload != nil:
		return summary.Upload.Summary()
	case summary.Result != nil:
		return summary.Result.Summary()
	default:
		return "Run complete"
	}
}
