package models

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// decodeID accepts the id encodings Girder emits: plain strings, numbers
// (the fake container listing) and extended-JSON {"$oid": "..."}.
// A missing or null id decodes to "".
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || isNull(raw) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{':
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(raw, &oid); err != nil {
			return "", err
		}
		return oid.OID, nil
	default:
		lit := string(bytes.TrimSpace(raw))
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		if _, err := strconv.ParseFloat(lit, 64); err != nil {
			return "", fmt.Errorf("invalid id %s", lit)
		}
		return lit, nil
	}
}

func decodeOptionalString(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
