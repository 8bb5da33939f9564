package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tierup/pkg/run"
)

// View renders the entire dashboard
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())

	if m.phase == run.PhaseWaitingLogin {
		sections = append(sections, m.renderLoginBanner())
	}

	sections = append(sections, m.renderCountersPanel())
	sections = append(sections, m.renderProgressPanel())
	sections = append(sections, m.renderLogsPanel())

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q cancel and quit • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

// renderHeader renders the title line with phase badge and spinner
func (m Model) renderHeader() string {
	name := headerStyle.Render("TIERUP")

	badge := PhaseStyle(m.phase).Render(
		strings.ToUpper(strings.ReplaceAll(string(m.phase), "_", " ")),
	)

	spin := " "
	if !m.phase.Terminal() {
		spin = m.spinner.View()
	}

	id := ""
	if m.runID != "" {
		id = logTimestampStyle.Render("run " + m.runID)
	}

	elapsed := statsValueStyle.Render(formatDuration(time.Since(m.started)))

	return lipgloss.JoinHorizontal(lipgloss.Center, name, spin, " ", badge, "  ", id, "  ", elapsed)
}

// renderLoginBanner renders the waiting-for-login callout
func (m Model) renderLoginBanner() string {
	banner := waitingStyle.Render("⏳ WAITING FOR LOGIN")
	note := warningStyle.Render("Sign in to the storefront in the browser window. Collection resumes on its own.")

	return lipgloss.JoinVertical(lipgloss.Left, banner, note)
}

// renderCountersPanel renders the run counters
func (m Model) renderCountersPanel() string {
	title := titleStyle.Render(" RUN COUNTERS ")

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Covers found:"),
			statsValueStyle.Render(fmt.Sprintf("%d", m.counters.Found))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Downloaded:"),
			okFailCell(m.counters.Downloaded, m.counters.DownloadFailed)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Uploaded:"),
			okFailCell(m.counters.Uploaded, m.counters.UploadFailed)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Skipped:"),
			statsValueStyle.Render(fmt.Sprintf("%d", m.counters.Skipped))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Scroll passes:"),
			statsValueStyle.Render(fmt.Sprintf("%d", m.counters.ScrollIterations))),
	}

	if m.cancelling && !m.phase.Terminal() {
		stats = append(stats, warningStyle.Render("⏸  CANCELLING"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, stats...)

	return panelStyle.Width(m.panelWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderProgressPanel renders the batch progress bar
func (m Model) renderProgressPanel() string {
	title := titleStyle.Render(" PROGRESS ")

	label, ratio, known := m.progressRatio()

	var content string
	if known {
		bar := m.bar
		bar.Width = m.panelWidth() - 10
		line := fmt.Sprintf("%s %s",
			statsLabelStyle.Render(label+":"),
			statsValueStyle.Render(fmt.Sprintf("%.0f%%", ratio*100)),
		)
		content = lipgloss.JoinVertical(lipgloss.Left, line, bar.ViewAs(ratio))
	} else {
		content = logMessageStyle.Render("Waiting for the first covers...")
	}

	return panelStyle.Width(m.panelWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderLogsPanel renders the scrolling log pane
func (m Model) renderLogsPanel() string {
	title := titleStyle.Render(" RUN LOG ")

	start := len(m.logs) - 10
	if start < 0 {
		start = 0
	}

	var lines []string
	for i := start; i < len(m.logs); i++ {
		entry := m.logs[i]
		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		message := entry.Message

		// Truncate message if too long
		maxMsgLen := m.panelWidth() - 16
		if maxMsgLen > 3 && len(message) > maxMsgLen {
			message = message[:maxMsgLen-3] + "..."
		}

		lines = append(lines, fmt.Sprintf("%s %s", timestamp, logMessageStyle.Render(message)))
	}

	content := strings.Join(lines, "\n")
	if content == "" {
		content = logMessageStyle.Render("No events yet...")
	}

	// Fill the space left under the fixed panels
	logsHeight := m.height - 24
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(m.panelWidth()).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m Model) renderHelp() string {
	help := `
  Keys:
    q / ctrl+c  - Cancel the run and quit
    ?           - Toggle this help

  The run drives its own browser window. While the
  header shows WAITING FOR LOGIN, sign in there and
  collection resumes on its own.
`

	return panelStyle.Width(m.panelWidth()).Render(help)
}

// okFailCell renders an "N ok / M failed" pair, lighting each side up
// only once it has something to report.
func okFailCell(ok, failed int) string {
	okPart := statsValueStyle.Render(fmt.Sprintf("%d ok", ok))
	if ok > 0 {
		okPart = successStyle.Render(fmt.Sprintf("%d ok", ok))
	}
	failPart := statsValueStyle.Render(fmt.Sprintf("%d failed", failed))
	if failed > 0 {
		failPart = errorStyle.Render(fmt.Sprintf("%d failed", failed))
	}
	return okPart + statsValueStyle.Render(" / ") + failPart
}

func (m Model) panelWidth() int {
	return m.width - 4
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	min := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, min, s)
	}
	return fmt.Sprintf("%02d:%02d", min, s)
}
