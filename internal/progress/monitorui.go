package progress

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
	"github.com/whole-tale/girder-wt-data-manager/internal/models"
	"github.com/whole-tale/girder-wt-data-manager/internal/monitor"
)

// MonitorUI shows one progress bar per transfer and keeps them in sync with
// the monitor's snapshots. It implements monitor.Renderer.
type MonitorUI struct {
	mu         sync.Mutex
	progress   *mpb.Progress
	bars       map[string]*transferBar
	isTerminal bool
	out        io.Writer
}

// transferBar tracks one transfer. Fields read by decorators are atomic since
// mpb renders from its own goroutine.
type transferBar struct {
	bar      *mpb.Bar
	label    atomic.Value // string
	progress atomic.Int64
	size     atomic.Int64
	done     atomic.Int64
}

// NewMonitorUI draws bars on f when it is a terminal. Otherwise it prints one
// plain line per transfer and snapshot.
func NewMonitorUI(f *os.File) *MonitorUI {
	isTerminal := term.IsTerminal(int(f.Fd()))
	if isTerminal {
		enableANSI(f)
	}
	return newMonitorUI(f, isTerminal)
}

func newMonitorUI(out io.Writer, isTerminal bool) *MonitorUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressUpdateInterval),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &MonitorUI{
		progress:   p,
		bars:       make(map[string]*transferBar),
		isTerminal: isTerminal,
		out:        out,
	}
}

// Render implements monitor.Renderer.
func (u *MonitorUI) Render(s monitor.Snapshot) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.isTerminal {
		return u.renderText(s)
	}

	seen := make(map[string]bool, len(s.Transfers))
	for _, t := range s.Transfers {
		seen[t.ID] = true
		u.update(t)
	}

	// Transfers that left the listing are dropped from the display
	for id, tb := range u.bars {
		if !seen[id] {
			tb.bar.Abort(true)
			delete(u.bars, id)
		}
	}

	for _, err := range s.Errors {
		if _, werr := fmt.Fprintf(u.progress, "✗ %v\n", err); werr != nil {
			return werr
		}
	}
	return nil
}

func (u *MonitorUI) update(t models.AnnotatedTransfer) {
	tb, ok := u.bars[t.ID]
	if !ok {
		tb = u.addBar(t)
		u.bars[t.ID] = tb
	}

	tb.label.Store(label(t))
	tb.progress.Store(int64(t.Progress))
	tb.size.Store(valueOf(t.Size))
	tb.done.Store(valueOf(t.Transferred))

	if tb.bar.Completed() || tb.bar.Aborted() {
		return
	}
	switch t.Status {
	case models.TransferDone:
		tb.bar.SetCurrent(100)
	case models.TransferFailed:
		tb.bar.Abort(false)
	default:
		tb.bar.SetCurrent(int64(min(max(t.Progress, 0), 99)))
	}
}

func (u *MonitorUI) addBar(t models.AnnotatedTransfer) *transferBar {
	tb := &transferBar{}
	tb.label.Store(label(t))

	tb.bar = u.progress.New(100,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return tb.label.Load().(string)
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf("%4d%%", tb.progress.Load())
			}, decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string {
				return humanize.Bytes(uint64(max(tb.done.Load(), 0))) + " / " +
					humanize.Bytes(uint64(max(tb.size.Load(), 0)))
			}, decor.WCSyncSpace),
		),
	)
	return tb
}

func (u *MonitorUI) renderText(s monitor.Snapshot) error {
	stamp := s.At.Format(time.TimeOnly)
	for _, t := range s.Transfers {
		if _, err := fmt.Fprintf(u.out, "%s %s %d%% %s / %s\n",
			stamp, label(t), t.Progress,
			humanize.Bytes(uint64(max(valueOf(t.Transferred), 0))),
			humanize.Bytes(uint64(max(valueOf(t.Size), 0)))); err != nil {
			return err
		}
	}
	for _, err := range s.Errors {
		if _, werr := fmt.Fprintf(u.out, "%s ✗ %v\n", stamp, err); werr != nil {
			return werr
		}
	}
	return nil
}

// Writer returns a writer that prints above the bars when they are active.
func (u *MonitorUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are being drawn.
func (u *MonitorUI) IsTerminal() bool { return u.isTerminal }

// Active returns the ids of the transfers currently shown, sorted.
func (u *MonitorUI) Active() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]string, 0, len(u.bars))
	for id := range u.bars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every bar still running and waits for the final frame.
func (u *MonitorUI) Close() {
	u.mu.Lock()
	for id, tb := range u.bars {
		if !tb.bar.Completed() && !tb.bar.Aborted() {
			tb.bar.Abort(false)
		}
		delete(u.bars, id)
	}
	u.mu.Unlock()
	u.progress.Wait()
}

func label(t models.AnnotatedTransfer) string {
	name := t.Path
	if name == "" {
		name = t.ItemID
	}
	return fmt.Sprintf("%s %-12s %s", t.ID, t.StringStatus, truncatePath(name, 2))
}

func valueOf(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
