// Package render draws monitor snapshots as text tables.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/whole-tale/girder-wt-data-manager/internal/models"
	"github.com/whole-tale/girder-wt-data-manager/internal/monitor"
	"github.com/whole-tale/girder-wt-data-manager/internal/transfer"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

// Table renders each snapshot as a containers table followed by a transfers
// table. It implements monitor.Renderer.
type Table struct {
	mu    sync.Mutex
	out   io.Writer
	clear bool
}

// NewTable writes to out. When clear is set every frame starts by clearing
// the screen, for interactive terminals.
func NewTable(out io.Writer, clear bool) *Table {
	return &Table{out: out, clear: clear}
}

// Render implements monitor.Renderer.
func (t *Table) Render(s monitor.Snapshot) error {
	var b strings.Builder
	if t.clear {
		b.WriteString(clearScreen)
	}

	header := fmt.Sprintf("dmwatch  cycle %d  %s", s.Generation, s.At.Format("15:04:05"))
	if s.Placeholder {
		header += "  " + yellow.Render("(placeholder data)")
	}
	b.WriteString(bold.Render(header))
	b.WriteString("\n\n")

	b.WriteString(cyan.Render(fmt.Sprintf("Containers (%d)", len(s.Containers))))
	b.WriteString("\n")
	b.WriteString(Containers(s.Containers))
	b.WriteString("\n\n")

	sum := transfer.Summarize(s.Transfers)
	b.WriteString(cyan.Render(fmt.Sprintf("Transfers (%d, %d active)", sum.Total, sum.Active())))
	b.WriteString("\n")
	b.WriteString(Transfers(s.Transfers, s.At))
	b.WriteString("\n")
	b.WriteString(gray.Render(SummaryLine(sum)))
	b.WriteString("\n")

	for _, err := range s.Errors {
		b.WriteString(red.Render("! " + err.Error()))
		b.WriteString("\n")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.out, b.String())
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(gray).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// Containers renders the container listing.
func Containers(cs []models.ContainerRecord) string {
	t := newTable("ID", "STATUS", "SESSION", "MOUNT", "ERROR")
	for _, c := range cs {
		t.Row(c.ID, containerStatus(c.Status), c.SessionID, deref(c.MountID), deref(c.Error))
	}
	return t.String()
}

// Sessions renders the session listing.
func Sessions(ss []models.SessionRecord) string {
	t := newTable("ID", "OWNER", "ITEMS")
	for _, s := range ss {
		items := "-"
		if n := s.Items(); n >= 0 {
			items = strconv.Itoa(n)
		}
		t.Row(s.ID, s.OwnerID, items)
	}
	return t.String()
}

// Transfers renders the annotated transfer listing. Elapsed time of running
// transfers is measured against now.
func Transfers(ts []models.AnnotatedTransfer, now time.Time) string {
	t := newTable("ID", "STATUS", "PROGRESS", "SIZE", "ELAPSED", "PATH", "ERROR")
	for _, tr := range ts {
		t.Row(
			tr.ID,
			transferStatus(tr.Status, tr.StringStatus),
			strconv.Itoa(tr.Progress)+"%",
			bytesOf(tr.Transferred)+" / "+bytesOf(tr.Size),
			elapsed(tr.TransferRecord, now),
			tr.Path,
			deref(tr.Error),
		)
	}
	return t.String()
}

func elapsed(tr models.TransferRecord, now time.Time) string {
	d, ok := tr.Elapsed(now)
	if !ok {
		return "-"
	}
	return d.Round(time.Second).String()
}

// SummaryLine is the one-line status count shown under the transfers table.
func SummaryLine(s transfer.Summary) string {
	parts := make([]string, 0, 5)
	for code := models.TransferInitializing; code <= models.TransferFailed; code++ {
		if n := s.ByStatus[code]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", code, n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no transfers")
	}
	return fmt.Sprintf("%s  |  %s of %s",
		strings.Join(parts, ", "),
		humanize.Bytes(uint64(max(s.Transferred, 0))),
		humanize.Bytes(uint64(max(s.Bytes, 0))))
}

func transferStatus(s models.TransferStatus, label string) string {
	switch s {
	case models.TransferDone:
		return green.Render(label)
	case models.TransferFailed:
		return red.Render(label)
	case models.TransferTransferring:
		return cyan.Render(label)
	}
	return label
}

func containerStatus(s models.ContainerStatus) string {
	switch s {
	case models.ContainerRunning:
		return green.Render(string(s))
	case models.ContainerStopped:
		return gray.Render(string(s))
	case "":
		return "-"
	}
	return string(s)
}

func bytesOf(n *int64) string {
	if n == nil {
		return "-"
	}
	if *n < 0 {
		return strconv.FormatInt(*n, 10)
	}
	return humanize.Bytes(uint64(*n))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
