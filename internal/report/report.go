// Package report accumulates per-site outcomes of a mass update run and
// renders them as a summary table.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Terminal per-site statuses. Anything else in a row's Status column is
// error text from the step that failed.
const (
	StatusUpToDate     = "Up to date"
	StatusNeedsUpdate  = "Needs update"
	StatusUpdated      = "Updated"
	StatusBackupFailed = "Backup failed"
)

// Row is one site's outcome.
type Row struct {
	SiteName string
	Status   string
}

// Report is the append-only collection of per-site outcomes. It is the only
// state shared across sites during a run.
type Report struct {
	rows []Row
}

// New creates an empty report.
func New() *Report {
	return &Report{}
}

// Add records a site's terminal status.
func (r *Report) Add(siteName, status string) {
	r.rows = append(r.rows, Row{SiteName: siteName, Status: status})
}

// Rows returns the recorded rows sorted by site name.
func (r *Report) Rows() []Row {
	rows := make([]Row, len(r.rows))
	copy(rows, r.rows)
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SiteName < rows[j].SiteName
	})
	return rows
}

// Empty reports whether nothing was recorded.
func (r *Report) Empty() bool {
	return len(r.rows) == 0
}

// Render writes the summary table, or a "nothing to do" message when the
// report is empty.
func (r *Report) Render(w io.Writer) {
	if r.Empty() {
		fmt.Fprintln(w, "No sites in need of updating.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Site", "Status")

	for _, row := range r.Rows() {
		t.Row(row.SiteName, row.Status)
	}

	fmt.Fprintln(w, t.Render())
}
