package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whole-tale/girder-wt-data-manager/internal/api"
	"github.com/whole-tale/girder-wt-data-manager/internal/events"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
	"github.com/whole-tale/girder-wt-data-manager/internal/metrics"
)

type request struct {
	method string
	path   string
	body   string
}

type harness struct {
	dispatcher *Dispatcher
	bus        *events.EventBus
	logs       *bytes.Buffer
	last       *request
	calls      *atomic.Int32
}

func newHarness(t *testing.T, status int, body string) *harness {
	t.Helper()
	h := &harness{last: &request{}, calls: &atomic.Int32{}, logs: &bytes.Buffer{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		*h.last = request{method: r.Method, path: r.URL.Path, body: string(b)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL+"/api/v1", "tok", srv.Client(),
		api.WithRetryWait(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	h.bus = events.NewEventBus(10)
	t.Cleanup(h.bus.Close)
	h.dispatcher = New(client, Options{
		Bus:    h.bus,
		Logger: logging.NewLoggerWithWriter(h.logs),
	})
	return h
}

// entries decodes the JSON log lines written so far.
func (h *harness) entries(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(h.logs.Bytes()))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func next(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func TestSend_CreateContainer(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{"_id":"c1","status":"Starting"}`)
	completed := h.bus.Subscribe(events.EventCommandCompleted)

	res, err := h.dispatcher.Send(context.Background(), CreateContainer(`{"value": 5}`))
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, http.MethodPost, h.last.method)
	assert.Equal(t, "/api/v1/dm/testing/container", h.last.path)
	assert.JSONEq(t, `{"dataSet":"{\"value\": 5}"}`, h.last.body)

	assert.Equal(t, "container_created", res.Event)
	assert.JSONEq(t, `{"_id":"c1","status":"Starting"}`, string(res.Body))

	ev := next(t, completed).(*events.CommandCompletedEvent)
	assert.Equal(t, "create_container", ev.Command)
	assert.Equal(t, "container_created", ev.Name)
	assert.Equal(t, http.StatusOK, ev.StatusCode)
	assert.JSONEq(t, `{"_id":"c1","status":"Starting"}`, string(ev.Body))
}

func TestSend_RequestShapes(t *testing.T) {
	tests := []struct {
		cmd    Command
		method string
		path   string
		event  string
	}{
		{StartContainer("7"), http.MethodGet, "/api/v1/dm/testing/container/7/start", "container_started"},
		{StopContainer("7"), http.MethodGet, "/api/v1/dm/testing/container/7/stop", "container_stopped"},
		{RemoveContainer("7"), http.MethodDelete, "/api/v1/dm/testing/container/7", "container_removed"},
		{DeleteSessions(), http.MethodGet, "/api/v1/dm/testing/deleteSessions", "sessions_deleted"},
		{CreateTestItems(), http.MethodPost, "/api/v1/dm/testing/createItems", "test_items_created"},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd.Kind), func(t *testing.T) {
			h := newHarness(t, http.StatusOK, "")
			res, err := h.dispatcher.Send(context.Background(), tt.cmd)
			require.NoError(t, err)

			assert.Equal(t, int32(1), h.calls.Load())
			assert.Equal(t, tt.method, h.last.method)
			assert.Equal(t, tt.path, h.last.path)
			assert.Equal(t, tt.event, res.Event)
			assert.Equal(t, "null", string(res.Body))
		})
	}
}

func TestSend_RemoveContainerStructuredFailure(t *testing.T) {
	h := newHarness(t, http.StatusInternalServerError,
		`{"message":"boom","trace":[["f.py",10,"g","x=1"]]}`)
	failed := h.bus.Subscribe(events.EventCommandFailed)

	_, err := h.dispatcher.Send(context.Background(), RemoveContainer("7"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, int32(1), h.calls.Load(), "commands are never retried")
	assert.Equal(t, http.MethodDelete, h.last.method)
	assert.Equal(t, "/api/v1/dm/testing/container/7", h.last.path)

	var traces []string
	for _, e := range h.entries(t) {
		if e["trace"] == true {
			traces = append(traces, e["message"].(string))
		}
	}
	assert.Equal(t, []string{"f.py, line 10 in g\n\tx=1"}, traces)

	ev := next(t, failed).(*events.CommandFailedEvent)
	assert.Equal(t, "remove_container", ev.Command)
	assert.Equal(t, "7", ev.TargetID)
	assert.Equal(t, http.StatusInternalServerError, ev.StatusCode)
	assert.Equal(t, "boom", ev.Message)
	assert.Equal(t, []string{"f.py, line 10 in g\n\tx=1"}, ev.Trace)

	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestSend_UnstructuredFailure(t *testing.T) {
	h := newHarness(t, http.StatusBadGateway, "<html>bad gateway</html>")
	failed := h.bus.Subscribe(events.EventCommandFailed)

	_, err := h.dispatcher.Send(context.Background(), StopContainer("3"))
	require.Error(t, err)
	assert.Equal(t, int32(1), h.calls.Load())

	ev := next(t, failed).(*events.CommandFailedEvent)
	assert.Empty(t, ev.Message)
	assert.Empty(t, ev.Trace)
	assert.Equal(t, http.StatusBadGateway, ev.StatusCode)

	for _, e := range h.entries(t) {
		assert.NotEqual(t, true, e["trace"])
	}
}

func TestSend_InvalidCommand(t *testing.T) {
	h := newHarness(t, http.StatusOK, "")

	_, err := h.dispatcher.Send(context.Background(), RemoveContainer(""))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = h.dispatcher.Send(context.Background(), Command{Kind: "reboot"})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	assert.Equal(t, int32(0), h.calls.Load())
}

type failingClient struct{ Client }

func (failingClient) DeleteSessions(context.Context) (*api.Response, error) {
	return nil, errors.New("connection refused")
}

func TestSend_TransportFailureCountsMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := New(failingClient{}, Options{Metrics: m})

	_, err := d.Send(context.Background(), DeleteSessions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete_sessions failed")
	assert.Contains(t, err.Error(), "connection refused")

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "dmwatch_commands_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "remove_container 7", RemoveContainer("7").String())
	assert.Equal(t, "delete_sessions", DeleteSessions().String())
}
