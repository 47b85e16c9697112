package models

import (
	"errors"

	"github.com/goccy/go-json"
)

// SessionRecord is a data-manager session as returned by GET dm/session.
type SessionRecord struct {
	ID      string          `json:"_id"`
	OwnerID string          `json:"ownerId"`
	DataSet json.RawMessage `json:"dataSet,omitempty"`
}

// RecordID implements the collection record contract.
func (s SessionRecord) RecordID() string { return s.ID }

// Validate checks the invariants the client relies on.
func (s SessionRecord) Validate() error {
	if s.ID == "" {
		return errors.New("session has no _id")
	}
	return nil
}

// Items returns the number of entries in the session's data set, or -1 when
// the data set is not a list.
func (s SessionRecord) Items() int {
	var entries []json.RawMessage
	if len(s.DataSet) == 0 || isNull(s.DataSet) {
		return 0
	}
	if err := json.Unmarshal(s.DataSet, &entries); err != nil {
		return -1
	}
	return len(entries)
}

// UnmarshalJSON decodes a session, normalising its ids.
func (s *SessionRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      json.RawMessage `json:"_id"`
		OwnerID json.RawMessage `json:"ownerId"`
		DataSet json.RawMessage `json:"dataSet"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.ID, err = decodeID(raw.ID); err != nil {
		return err
	}
	if s.OwnerID, err = decodeID(raw.OwnerID); err != nil {
		return err
	}
	s.DataSet = nil
	if len(raw.DataSet) > 0 && !isNull(raw.DataSet) {
		s.DataSet = raw.DataSet
	}
	return nil
}
