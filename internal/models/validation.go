package models

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// RecordError describes one record rejected at the decoding boundary.
type RecordError struct {
	Index int    // position in the response array
	ID    string // empty when the id itself could not be read
	Err   error
}

func (e RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// ValidationError is returned when a listing contains records that violate the
// client's invariants. The whole listing is rejected.
type ValidationError struct {
	Resource string
	Records  []RecordError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Records))
	for _, r := range e.Records {
		parts = append(parts, r.Error())
	}
	return fmt.Sprintf("%s: %d invalid record(s): %s", e.Resource, len(e.Records), strings.Join(parts, "; "))
}

// Unwrap exposes the per-record causes to errors.Is / errors.As.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Records))
	for _, r := range e.Records {
		errs = append(errs, r)
	}
	return errs
}

// Validatable is implemented by every record type decoded from a listing.
type Validatable interface {
	Validate() error
}

// DecodeList decodes a JSON array element by element, validating each record.
// Any malformed or invalid element fails the whole list with a *ValidationError.
func DecodeList[T any, PT interface {
	*T
	Validatable
}](resource string, body []byte) ([]T, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, fmt.Errorf("%s: failed to decode listing: %w", resource, err)
	}

	out := make([]T, 0, len(elems))
	var bad []RecordError
	for i, elem := range elems {
		var rec T
		if err := json.Unmarshal(elem, PT(&rec)); err != nil {
			bad = append(bad, RecordError{Index: i, Err: err})
			continue
		}
		if err := PT(&rec).Validate(); err != nil {
			id := ""
			if r, ok := any(rec).(interface{ RecordID() string }); ok {
				id = r.RecordID()
			}
			bad = append(bad, RecordError{Index: i, ID: id, Err: err})
			continue
		}
		out = append(out, rec)
	}

	if len(bad) > 0 {
		return nil, &ValidationError{Resource: resource, Records: bad}
	}
	return out, nil
}
