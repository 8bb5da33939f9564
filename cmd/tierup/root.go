package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"tierup/pkg/ui"
)

var (
	// Version information, set at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	outputDir  string
	noColor    bool
	useTUI     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tierup",
	Short: "Collect game covers from your library and build a tier list from them",
	Long: `tierup drives a real browser session against your storefront library
page, collects every game cover it can find, and uploads them to a
single-use tier list builder.

A run has two halves:
  - collect: open the library page, wait for you to log in if a login
    wall is up, scroll until the page stops growing, then download every
    cover at a polite pace
  - publish: open the tier list builder and attach the downloaded covers
    one by one, confirming each upload before moving on

Use 'tierup run' for both halves in one browser session, or 'tierup
collect' and 'tierup publish' to split the work across invocations.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColorEnabled(false)
		}

		// The dashboard owns the screen, and utility commands stay terse
		switch cmd.Name() {
		case "version", "help", "completion", "init", "show", "validate":
			return
		}
		if !useTUI {
			ui.PrintBanner()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default searches ./tierup.yaml and ~/.config/tierup/)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "directory for downloaded covers (default \"covers\")")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "show the live dashboard instead of plain log output")

	// Version template
	rootCmd.SetVersionTemplate(`tierup {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
