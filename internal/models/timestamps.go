package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Layouts Girder's JSON encoder produces for datetimes. Naive values are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05.999999",
}

// decodeTime accepts an ISO 8601 string or extended-JSON {"$date": ms}.
// A missing or null value decodes to nil.
func decodeTime(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	if raw[0] == '{' {
		var d struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		ms, err := strconv.ParseInt(strings.TrimSpace(string(d.Date)), 10, 64)
		if err != nil {
			return decodeTime(d.Date)
		}
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q", s)
}
