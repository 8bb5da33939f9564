package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tierup/pkg/config"
	"tierup/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tierup configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TIERUP_*)
  - .env file in the working directory
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'tierup.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values`,
	Run: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required URLs and selectors
  - Value ranges
  - Output directory accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

// exampleConfig is written by 'tierup config init'.
const exampleConfig = `# tierup configuration file
#
# Environment variables prefixed with TIERUP_ override these values,
# for example TIERUP_LIBRARY_URL or TIERUP_OUTPUT_DIR. A .env file in
# the working directory is read as well.

# The storefront library page to collect covers from
library:
  # Page that lists your games (required)
  url: "https://store.example.com/account/library"

  # Substring of the body class that marks the login wall
  login_marker: "login"

  # How often to re-check the page while the wall is up
  login_poll_interval: 3s

  # Give up waiting for a login after this long
  login_max_wait: 5m

# Scroll-and-settle behaviour for the lazy-loaded library page
scroll:
  # Pause between scrolls so new covers can load
  pause: 2s

  # Hard cap on scroll iterations
  max_iterations: 50

  # Page height must hold still this many checks in a row
  settle_threshold: 3

# Cover download settings
download:
  # Directory the covers are written into
  output_dir: "covers"

  # Pause between downloads
  delay: 500ms

  # Download timeout per image
  timeout: 30s

  # Image names to skip (placeholder art)
  skip_names:
    - "defaultappheader.png"

# Tier list builder settings
upload:
  # Builder page the covers are uploaded to
  target_url: "https://tiermaker.com/single-use-tier-list/"

  # File input the covers are attached to, with a generic fallback
  file_input: "#extra-images-input"
  file_input_fallback: "input[type='file'][accept*='image']"

  # Tile orientation: portrait or landscape
  orientation_select: "#orientation-picker"
  orientation: "portrait"

  # An upload counts once the tile count under this selector rises
  confirm_selector: ".character"
  confirm_timeout: 15s

  # Pause between uploads
  delay: 1s

  # Leave the browser window open so you can finish the tier list
  keep_browser_open: true

# Browser session settings
browser:
  # Headless runs cannot show a login window
  headless: false
  window_width: 1280
  window_height: 1080
  nav_timeout: 45s

# Per-item retry settings
retry:
  max_attempts: 3
  initial_delay: 1s
  max_delay: 30s
  multiplier: 2.0

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log format: auto, console, json
  format: "auto"

  # Log file path (optional, appended alongside stderr)
  file: ""

# Optional Prometheus endpoint
metrics:
  enabled: false
  addr: ":9090"

# Desktop notifications on run completion and failure
notifications:
  enabled: false
  on_complete: true
  on_error: true
`

func runConfigInit(cmd *cobra.Command, args []string) {
	// Determine config file path
	configPath := configFile
	if configPath == "" {
		configPath = "tierup.yaml"
	}

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	// Write configuration file
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file and set your library URL")
	fmt.Println("2. Run 'tierup config validate' to check the configuration")
	fmt.Println("3. Start a run with 'tierup run'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(configFile, buildFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Convert to YAML for display
	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	// Show configuration sources
	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (TIERUP_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched default locations)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	} else {
		ui.PrintInfo("Validating configuration", "default locations")
	}

	// Merge the file over the defaults without failing fast, so every
	// problem can be listed at once
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var problems []string
	if err := cfg.Validate(); err != nil {
		problems = strings.Split(err.Error(), "\n")
	}

	// Check the output directory is usable
	if cfg.Download.OutputDir != "" {
		if err := os.MkdirAll(cfg.Download.OutputDir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration is valid")

	// Show summary
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Library page: %s\n", cfg.Library.URL)
	fmt.Printf("  Output directory: %s\n", cfg.Download.OutputDir)
	fmt.Printf("  Builder page: %s\n", cfg.Upload.TargetURL)
	fmt.Printf("  Download delay: %s\n", cfg.Download.Delay.Dur())
	fmt.Printf("  Max retries: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
