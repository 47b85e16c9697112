package models

import (
	"errors"

	"github.com/goccy/go-json"
)

// ContainerStatus is the server-defined lifecycle state of a test container.
// The server owns the set of values; the ones below are those it is known to emit.
type ContainerStatus string

const (
	ContainerStarting ContainerStatus = "Starting"
	ContainerRunning  ContainerStatus = "Running"
	ContainerStopping ContainerStatus = "Stopping"
	ContainerStopped  ContainerStatus = "Stopped"
)

// ContainerRecord is a container as returned by GET dm/testing/container.
// Fields the client does not model are kept in Metadata.
type ContainerRecord struct {
	ID        string                     `json:"_id"`
	OwnerID   string                     `json:"ownerId"`
	SessionID string                     `json:"sessionId"`
	Status    ContainerStatus            `json:"status"`
	Error     *string                    `json:"error"`
	MountID   *string                    `json:"mountId,omitempty"`
	Metadata  map[string]json.RawMessage `json:"-"`
}

// RecordID implements the collection record contract.
func (c ContainerRecord) RecordID() string { return c.ID }

// Validate checks the invariants the client relies on.
func (c ContainerRecord) Validate() error {
	if c.ID == "" {
		return errors.New("container has no _id")
	}
	return nil
}

var containerFields = []string{"_id", "ownerId", "sessionId", "status", "error", "mountId"}

// UnmarshalJSON decodes a container and keeps unknown fields in Metadata.
func (c *ContainerRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var err error
	if c.ID, err = decodeID(fields["_id"]); err != nil {
		return err
	}
	if c.OwnerID, err = decodeID(fields["ownerId"]); err != nil {
		return err
	}
	if c.SessionID, err = decodeID(fields["sessionId"]); err != nil {
		return err
	}

	c.Status = ""
	if raw, ok := fields["status"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		c.Status = ContainerStatus(s)
	}
	if c.Error, err = decodeOptionalString(fields["error"]); err != nil {
		return err
	}
	if c.MountID, err = decodeOptionalString(fields["mountId"]); err != nil {
		return err
	}

	for _, name := range containerFields {
		delete(fields, name)
	}
	c.Metadata = nil
	if len(fields) > 0 {
		c.Metadata = fields
	}
	return nil
}

// MarshalJSON writes the modelled fields followed by Metadata.
func (c ContainerRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Metadata)+len(containerFields))
	for k, v := range c.Metadata {
		out[k] = v
	}
	out["_id"] = c.ID
	out["ownerId"] = c.OwnerID
	out["sessionId"] = c.SessionID
	out["status"] = c.Status
	out["error"] = c.Error
	if c.MountID != nil {
		out["mountId"] = c.MountID
	}
	return json.Marshal(out)
}
