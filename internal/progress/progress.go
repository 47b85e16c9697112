// Package progress draws terminal progress for dmwatch: mpb bars for the
// transfer view and a spinner for one-shot commands.
package progress

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

const spinInterval = 100 * time.Millisecond

// Spinner shows an indeterminate spinner while a command is in flight.
// On a non-terminal writer it draws nothing.
type Spinner struct {
	bar  *progressbar.ProgressBar
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartSpinner starts a spinner on w with the given description. Nothing is
// drawn unless w is a terminal.
func StartSpinner(w io.Writer, description string) *Spinner {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		w = io.Discard
	}
	return startSpinner(w, description)
}

func startSpinner(w io.Writer, description string) *Spinner {
	s := &Spinner{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		),
		stop: make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(spinInterval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				_ = s.bar.Add(1)
			}
		}
	}()
	return s
}

// Stop clears the spinner. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		_ = s.bar.Finish()
	})
}

// truncatePath keeps the last maxComponents elements of a path.
func truncatePath(path string, maxComponents int) string {
	if path == "" {
		return ""
	}
	parts := strings.Split(strings.Trim(filepath.ToSlash(path), "/"), "/")
	if len(parts) <= maxComponents {
		return path
	}
	return "…/" + strings.Join(parts[len(parts)-maxComponents:], "/")
}
