package tui

import (
	"github.com/charmbracelet/lipgloss"

	"tierup/pkg/run"
)

var (
	// Cyberpunk color palette
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	neonRed     = lipgloss.Color("#FF3131")
	darkBg      = lipgloss.Color("#0A0E27")
	darkBg2     = lipgloss.Color("#1A1E37")
	dimWhite    = lipgloss.Color("#B0B0B0")

	// Base styles
	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	headerStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true).
			Padding(0, 1)

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Background(darkBg2).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	// Stats styles
	statsLabelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	// Status styles
	successStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(neonRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(neonOrange).
			Bold(true)

	// Login wall banner
	waitingStyle = lipgloss.NewStyle().
			Background(neonOrange).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	// Log styles
	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	// Help style
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(1, 0, 0, 2)
)

// PhaseStyle returns the badge style for a run phase.
func PhaseStyle(p run.Phase) lipgloss.Style {
	badge := lipgloss.NewStyle().
		Foreground(darkBg).
		Bold(true).
		Padding(0, 1)

	switch p {
	case run.PhaseScraping:
		return badge.Background(neonCyan)
	case run.PhaseWaitingLogin:
		return badge.Background(neonOrange)
	case run.PhaseUploading:
		return badge.Background(neonMagenta)
	case run.PhaseDone:
		return badge.Background(neonGreen)
	case run.PhaseFailed:
		return badge.Background(neonRed)
	case run.PhaseCancelled:
		return badge.Background(neonYellow)
	default:
		return badge.Background(dimWhite)
	}
}
