package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tierup/pkg/run"
)

// logLine is one entry in the dashboard log pane.
type logLine struct {
	Time    time.Time
	Message string
}

// Model is the dashboard state, fed exclusively by run events and key
// presses flowing through Update.
type Model struct {
	// UI components
	spinner spinner.Model
	bar     progress.Model

	// Run state
	runID    string
	phase    run.Phase
	counters run.Counters
	started  time.Time

	// Log pane
	logs    []logLine
	maxLogs int

	// UI state
	width      int
	height     int
	showHelp   bool
	cancelling bool
	done       bool
	err        error

	// Invoked once when the operator asks to stop the run.
	cancel func()
}

// NewModel creates a dashboard model. cancel is called when the
// operator presses q or ctrl+c during a run.
func NewModel(cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		spinner: s,
		bar:     bar,
		phase:   run.PhaseIdle,
		started: time.Now(),
		maxLogs: 50,
		cancel:  cancel,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Phase returns the phase currently shown in the header.
func (m *Model) Phase() run.Phase {
	return m.phase
}

// Err returns the error delivered with the final DoneMsg, if any.
func (m *Model) Err() error {
	return m.err
}

// applyEvent folds one run event into the dashboard state.
func (m *Model) applyEvent(ev run.Event) {
	if ev.RunID != "" {
		m.runID = ev.RunID
	}
	m.phase = ev.Phase
	m.counters = ev.Counters
	if ev.Line != "" {
		m.appendLog(ev.Time, ev.Line)
	}
}

func (m *Model) appendLog(at time.Time, message string) {
	if at.IsZero() {
		at = time.Now()
	}
	m.logs = append(m.logs, logLine{Time: at, Message: message})

	// Keep only the last N messages
	if len(m.logs) > m.maxLogs {
		m.logs = m.logs[len(m.logs)-m.maxLogs:]
	}
}

// progressRatio reports how far the current batch has come. Downloads
// drive the bar while collecting, uploads take over once publishing
// has started.
func (m *Model) progressRatio() (label string, ratio float64, known bool) {
	uploads := m.counters.Uploaded + m.counters.UploadFailed
	if m.phase == run.PhaseUploading || uploads > 0 {
		total := m.counters.Downloaded
		if total == 0 {
			return "uploads", 0, false
		}
		return "uploads", clampRatio(float64(uploads) / float64(total)), true
	}

	if m.counters.Found == 0 {
		return "downloads", 0, false
	}
	finished := m.counters.Downloaded + m.counters.DownloadFailed
	return "downloads", clampRatio(float64(finished) / float64(m.counters.Found)), true
}

func clampRatio(r float64) float64 {
	if r > 1.0 {
		return 1.0
	}
	return r
}
