package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"tierup/pkg/run"
)

// Dashboard owns the bubbletea program for a live run view. It doubles
// as a run.Emitter so the run loop can feed it directly.
type Dashboard struct {
	program *tea.Program
	model   *Model
}

var _ run.Emitter = (*Dashboard)(nil)

// New creates a dashboard. cancel is invoked when the operator presses
// q or ctrl+c while the run is still going.
func New(cancel func()) *Dashboard {
	model := NewModel(cancel)
	program := tea.NewProgram(&model, tea.WithAltScreen())

	return &Dashboard{
		program: program,
		model:   &model,
	}
}

// Run blocks until the dashboard exits.
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

// Emit forwards a run event into the dashboard loop.
func (d *Dashboard) Emit(ev run.Event) {
	d.program.Send(EventMsg(ev))
}

// Finish tells the dashboard the run has ended so it can shut down.
func (d *Dashboard) Finish(err error) {
	d.program.Send(DoneMsg{Err: err})
}

// Quit force-stops the dashboard.
func (d *Dashboard) Quit() {
	d.program.Quit()
}
