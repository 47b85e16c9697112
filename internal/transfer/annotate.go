// Package transfer derives display state for data-manager transfers.
package transfer

import (
	"fmt"
	"math"

	"github.com/whole-tale/girder-wt-data-manager/internal/models"
)

// Progress returns round(transferred*100/size), or 0 when either count is
// absent or zero. The result is not clamped: a server reporting
// transferred > size yields a value above 100.
func Progress(transferred, size *int64) int {
	if transferred == nil || size == nil || *transferred == 0 || *size == 0 {
		return 0
	}
	return int(math.Round(float64(*transferred) * 100 / float64(*size)))
}

// Annotate returns a copy of rec with StringStatus and Progress filled in.
// The input is not modified.
func Annotate(rec models.TransferRecord) (models.AnnotatedTransfer, error) {
	label, err := rec.Status.Label()
	if err != nil {
		return models.AnnotatedTransfer{}, fmt.Errorf("transfer %s: %w", rec.ID, err)
	}
	return models.AnnotatedTransfer{
		TransferRecord: rec,
		StringStatus:   label,
		Progress:       Progress(rec.Transferred, rec.Size),
	}, nil
}

// AnnotateAll annotates every record in order. Records that cannot be
// annotated are left out and their errors returned alongside.
func AnnotateAll(recs []models.TransferRecord) ([]models.AnnotatedTransfer, []error) {
	out := make([]models.AnnotatedTransfer, 0, len(recs))
	var errs []error
	for _, rec := range recs {
		a, err := Annotate(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	return out, errs
}

// Summary aggregates a set of annotated transfers for status lines.
type Summary struct {
	Total       int
	ByStatus    map[models.TransferStatus]int
	Bytes       int64 // sum of known sizes
	Transferred int64 // sum of known transferred counts
	Failed      int
}

// Summarize counts transfers by status and totals their byte counts.
func Summarize(ts []models.AnnotatedTransfer) Summary {
	s := Summary{Total: len(ts), ByStatus: make(map[models.TransferStatus]int)}
	for _, t := range ts {
		s.ByStatus[t.Status]++
		if t.Size != nil {
			s.Bytes += *t.Size
		}
		if t.Transferred != nil {
			s.Transferred += *t.Transferred
		}
		if t.Status == models.TransferFailed {
			s.Failed++
		}
	}
	return s
}

// Active reports how many transfers have not reached a terminal status.
func (s Summary) Active() int {
	n := 0
	for status, count := range s.ByStatus {
		if !status.Terminal() {
			n += count
		}
	}
	return n
}
