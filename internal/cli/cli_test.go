package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/whole-tale/girder-wt-data-manager/internal/config"
)

// seenRequest is one request received by the fake data manager.
type seenRequest struct {
	Method string
	Path   string
	Token  string
	Body   string
}

// fakeServer answers every request with the response registered for
// "METHOD /path", or 404.
type fakeServer struct {
	URL string

	mu        sync.Mutex
	responses map[string]string
	statuses  map[string]int
	requests  []seenRequest
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{responses: map[string]string{}, statuses: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		path := strings.TrimPrefix(r.URL.Path, "/api/v1")

		fs.mu.Lock()
		fs.requests = append(fs.requests, seenRequest{
			Method: r.Method,
			Path:   path,
			Token:  r.Header.Get("Girder-Token"),
			Body:   string(b),
		})
		key := r.Method + " " + path
		body, ok := fs.responses[key]
		status := fs.statuses[key]
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message": "not found", "type": "rest"}`)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	fs.URL = srv.URL + "/api/v1"
	return fs
}

func (fs *fakeServer) handle(method, path string, status int, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	key := method + " " + path
	fs.responses[key] = body
	fs.statuses[key] = status
}

func (fs *fakeServer) seen() []seenRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]seenRequest(nil), fs.requests...)
}

// runCLI executes the full command tree with args and returns stdout.
// A config path inside a temp dir is always passed so the user's own
// configuration is never read.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	for _, k := range []string{config.EnvAPIURL, config.EnvToken, config.EnvPollInterval, config.EnvPlaceholder} {
		t.Setenv(k, "")
	}
	if !hasFlag(args, "--config") {
		args = append([]string{"--config", filepath.Join(t.TempDir(), "dmwatch.ini")}, args...)
	}

	root := NewRootCmd()
	AddCommands(root)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	logger = nil
	return stdout.String(), stderr.String(), err
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}

// noTerminal makes every terminal check fail for the duration of the test.
func noTerminal(t *testing.T) {
	t.Helper()
	orig := termIsTerminal
	termIsTerminal = func(int) bool { return false }
	t.Cleanup(func() { termIsTerminal = orig })
}
