// Package api provides error types for Girder API responses.
package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// TraceFrame is one entry of a Girder server-side traceback. Raw holds the
// frame's JSON text when it is not a [file, line, func, source] tuple.
type TraceFrame struct {
	File   string
	Line   int
	Func   string
	Source string
	Raw    string
}

// String renders the frame the way dmwatch logs it:
// "<file>, line <n> in <func>\n\t<source>".
func (f TraceFrame) String() string {
	if f.Raw != "" {
		return f.Raw
	}
	return fmt.Sprintf("%s, line %d in %s\n\t%s", f.File, f.Line, f.Func, f.Source)
}

// Error is a non-2xx response from the Girder API.
//
// When the body is Girder's structured error object, Message, Type and Trace
// are populated. Otherwise only StatusCode and Body are set.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Type       string
	Trace      []TraceFrame
	Body       []byte
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		body = nethttp.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Structured reports whether the server sent a parseable error object.
func (e *Error) Structured() bool { return e.Message != "" }

// TraceLines renders every trace frame, in server order.
func (e *Error) TraceLines() []string {
	lines := make([]string, 0, len(e.Trace))
	for _, f := range e.Trace {
		lines = append(lines, f.String())
	}
	return lines
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.StatusCode == nethttp.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 from the API.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsError(err)
	return ok && (apiErr.StatusCode == nethttp.StatusUnauthorized || apiErr.StatusCode == nethttp.StatusForbidden)
}

// newError builds an *Error from a failed response body.
func newError(method, path string, status int, body []byte) *Error {
	e := &Error{Method: method, Path: path, StatusCode: status, Body: body}

	var payload struct {
		Message string            `json:"message"`
		Type    string            `json:"type"`
		Trace   []json.RawMessage `json:"trace"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}
	e.Message = payload.Message
	e.Type = payload.Type
	for _, raw := range payload.Trace {
		f, ok := decodeFrame(raw)
		if !ok {
			f = TraceFrame{Raw: strings.TrimSpace(string(raw))}
		}
		e.Trace = append(e.Trace, f)
	}
	return e
}

// decodeFrame reads a [file, line, func, source] tuple.
func decodeFrame(raw json.RawMessage) (TraceFrame, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 4 {
		return TraceFrame{}, false
	}

	var f TraceFrame
	if err := json.Unmarshal(parts[0], &f.File); err != nil {
		return TraceFrame{}, false
	}
	line, err := strconv.Atoi(strings.TrimSpace(string(parts[1])))
	if err != nil {
		return TraceFrame{}, false
	}
	f.Line = line
	if err := json.Unmarshal(parts[2], &f.Func); err != nil {
		return TraceFrame{}, false
	}
	// Source is null when the interpreter could not read the file
	_ = json.Unmarshal(parts[3], &f.Source)
	return f, true
}
