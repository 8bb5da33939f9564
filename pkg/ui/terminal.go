// Package ui provides terminal output for tierup runs: colored status
// lines, the final per-item outcome table, and desktop notifications.
package ui

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// Banner is printed once at startup on interactive terminals.
const Banner = `
    ╔═══════════════════════════════════════════════╗
    ║ ████████╗██╗███████╗██████╗ ██╗   ██╗██████╗  ║
    ║ ╚══██╔══╝██║██╔════╝██╔══██╗██║   ██║██╔══██╗ ║
    ║    ██║   ██║█████╗  ██████╔╝██║   ██║██████╔╝ ║
    ║    ██║   ██║██╔══╝  ██╔══██╗██║   ██║██╔═══╝  ║
    ║    ██║   ██║███████╗██║  ██║╚██████╔╝██║      ║
    ║    ╚═╝   ╚═╝╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚═╝      ║
    ║   COVER COLLECTOR AND TIER LIST UPLOADER      ║
    ╚═══════════════════════════════════════════════╝
`

var interactive = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var (
	colorEnabled = interactive
	quiet        = !interactive
)

// SetColorEnabled overrides terminal detection, used by --no-color.
func SetColorEnabled(on bool) {
	colorEnabled = on
}

// SetQuiet suppresses the banner, informational lines and the outcome
// table. Errors and warnings still print.
func SetQuiet(on bool) {
	quiet = on
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
// when color output is enabled.
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintBanner prints the startup banner with color
func PrintBanner() {
	if quiet {
		return
	}
	fmt.Print(Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if quiet {
		return
	}
	fmt.Println(Green(msg))
}

// PrintInfo prints a labeled value in cyan
func PrintInfo(label string, value string) {
	if quiet {
		return
	}
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if quiet {
		return
	}
	fmt.Println(Magenta(msg))
}

// PrintDim prints a secondary detail line in dim text
func PrintDim(msg string) {
	if quiet {
		return
	}
	fmt.Println(Dim(msg))
}
