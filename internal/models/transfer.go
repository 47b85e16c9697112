package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// TransferStatus is the lifecycle code of a data-manager transfer.
type TransferStatus int

const (
	TransferInitializing TransferStatus = 0
	TransferQueued       TransferStatus = 1
	TransferTransferring TransferStatus = 2
	TransferDone         TransferStatus = 3
	TransferFailed       TransferStatus = 4
)

// ErrUnknownStatus is returned for a status code outside the closed catalog.
var ErrUnknownStatus = errors.New("unknown transfer status")

var statusLabels = map[TransferStatus]string{
	TransferInitializing: "Initializing",
	TransferQueued:       "Queued",
	TransferTransferring: "Transferring",
	TransferDone:         "Done",
	TransferFailed:       "Failed",
}

// LabelFor returns the display label for a raw status code.
// Codes outside 0..4 are a contract violation and produce an error wrapping ErrUnknownStatus.
func LabelFor(code int) (string, error) {
	return TransferStatus(code).Label()
}

// Label returns the display label for the status.
func (s TransferStatus) Label() (string, error) {
	label, ok := statusLabels[s]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return label, nil
}

// Valid reports whether s is one of the five defined codes.
func (s TransferStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// String implements fmt.Stringer. Unknown codes render as "TransferStatus(n)".
func (s TransferStatus) String() string {
	if label, err := s.Label(); err == nil {
		return label
	}
	return fmt.Sprintf("TransferStatus(%d)", int(s))
}

// Terminal reports whether no further progress is expected.
func (s TransferStatus) Terminal() bool {
	return s == TransferDone || s == TransferFailed
}

// TransferRecord is a transfer as returned by GET dm/transfer.
type TransferRecord struct {
	ID          string         `json:"_id"`
	OwnerID     string         `json:"ownerId"`
	SessionID   string         `json:"sessionId"`
	ItemID      string         `json:"itemId"`
	Status      TransferStatus `json:"status"`
	Error       *string        `json:"error"`
	Size        *int64         `json:"size"`
	Transferred *int64         `json:"transferred"`
	Path        string         `json:"path"`
	StartTime   *time.Time     `json:"startTime"`
	EndTime     *time.Time     `json:"endTime"`
}

// Elapsed returns how long the transfer has been running, or ran for when it
// has ended. It reports false when the start time is unknown.
func (t TransferRecord) Elapsed(now time.Time) (time.Duration, bool) {
	if t.StartTime == nil {
		return 0, false
	}
	end := now
	if t.EndTime != nil {
		end = *t.EndTime
	}
	if end.Before(*t.StartTime) {
		return 0, false
	}
	return end.Sub(*t.StartTime), true
}

// RecordID implements the collection record contract.
func (t TransferRecord) RecordID() string { return t.ID }

// Validate checks the invariants the client relies on.
func (t TransferRecord) Validate() error {
	if t.ID == "" {
		return errors.New("transfer has no _id")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("transfer %s: %w: %d", t.ID, ErrUnknownStatus, int(t.Status))
	}
	return nil
}

// UnmarshalJSON decodes a transfer, normalising the Girder ids that may arrive as
// strings or numbers.
func (t *TransferRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"_id"`
		OwnerID     json.RawMessage `json:"ownerId"`
		SessionID   json.RawMessage `json:"sessionId"`
		ItemID      json.RawMessage `json:"itemId"`
		Status      *int            `json:"status"`
		Error       *string         `json:"error"`
		Size        *int64          `json:"size"`
		Transferred *int64          `json:"transferred"`
		Path        string          `json:"path"`
		StartTime   json.RawMessage `json:"startTime"`
		EndTime     json.RawMessage `json:"endTime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Status == nil {
		return errors.New("transfer has no status")
	}

	var err error
	ids := []struct {
		dst *string
		src json.RawMessage
	}{
		{&t.ID, raw.ID},
		{&t.OwnerID, raw.OwnerID},
		{&t.SessionID, raw.SessionID},
		{&t.ItemID, raw.ItemID},
	}
	for _, id := range ids {
		if *id.dst, err = decodeID(id.src); err != nil {
			return err
		}
	}

	t.Status = TransferStatus(*raw.Status)
	t.Error = raw.Error
	t.Size = raw.Size
	t.Transferred = raw.Transferred
	t.Path = raw.Path
	if t.StartTime, err = decodeTime(raw.StartTime); err != nil {
		return fmt.Errorf("startTime: %w", err)
	}
	if t.EndTime, err = decodeTime(raw.EndTime); err != nil {
		return fmt.Errorf("endTime: %w", err)
	}
	return nil
}

// AnnotatedTransfer is a transfer plus the fields derived for display.
// It is never sent back to the server.
type AnnotatedTransfer struct {
	TransferRecord
	StringStatus string `json:"stringStatus"`
	Progress     int    `json:"progress"`
}
