package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"tierup/pkg/models"
)

// PrintOutcomeTable renders the per-item results of a run to stdout.
// Nothing is printed in quiet mode or for an empty run.
func PrintOutcomeTable(items []models.ImageRecord) {
	if quiet || len(items) == 0 {
		return
	}
	renderOutcomeTable(os.Stdout, items)
}

func renderOutcomeTable(w io.Writer, items []models.ImageRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: 40},
		{Name: "Error", WidthMax: 48},
	})

	t.AppendHeader(table.Row{"#", "Title", "Status", "Attempts", "Error"})

	ok := 0
	failed := 0
	for _, item := range items {
		switch item.Status {
		case models.StatusFailed, models.StatusUploadFailed:
			failed++
		case models.StatusDownloaded, models.StatusUploaded:
			ok++
		}
		t.AppendRow(table.Row{
			item.ID,
			item.Title,
			statusCell(item.Status),
			item.Attempts,
			item.LastError,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d ok, %d failed", ok, failed)})
	t.Render()
}

// statusCell colors a status for the table when color output is enabled.
func statusCell(status models.ItemStatus) string {
	if !colorEnabled {
		return string(status)
	}
	switch status {
	case models.StatusDownloaded, models.StatusUploaded:
		return text.FgGreen.Sprint(status)
	case models.StatusFailed, models.StatusUploadFailed:
		return text.FgRed.Sprint(status)
	case models.StatusSkipped:
		return text.FgYellow.Sprint(status)
	default:
		return string(status)
	}
}
