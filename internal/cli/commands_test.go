package cli

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestContainersCreateSendsDataSet(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodPost, "/dm/testing/container", http.StatusOK, `{"_id": "new-1", "status": "Starting"}`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok",
		"containers", "create", `[{"itemId": "i1", "mountPath": "/a"}]`)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(out, "container_created") || !strings.Contains(out, `"new-1"`) {
		t.Errorf("unexpected output %q", out)
	}

	reqs := srv.seen()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	var body struct {
		DataSet string `json:"dataSet"`
	}
	if err := json.Unmarshal([]byte(reqs[0].Body), &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body.DataSet != `[{"itemId": "i1", "mountPath": "/a"}]` {
		t.Errorf("dataSet = %q", body.DataSet)
	}
}

func TestContainersActionsHitTheirEndpoints(t *testing.T) {
	tests := []struct {
		args   []string
		method string
		path   string
		event  string
	}{
		{[]string{"containers", "start", "x1"}, http.MethodGet, "/dm/testing/container/x1/start", "container_started"},
		{[]string{"containers", "stop", "x1"}, http.MethodGet, "/dm/testing/container/x1/stop", "container_stopped"},
		{[]string{"containers", "remove", "x1"}, http.MethodDelete, "/dm/testing/container/x1", "container_removed"},
		{[]string{"sessions", "delete", "--yes"}, http.MethodGet, "/dm/testing/deleteSessions", "sessions_deleted"},
		{[]string{"testing", "create-items"}, http.MethodPost, "/dm/testing/createItems", "test_items_created"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			srv := newFakeServer(t)
			srv.handle(tt.method, tt.path, http.StatusOK, ``)

			args := append([]string{"--api-url", srv.URL, "--token", "tok"}, tt.args...)
			out, _, err := runCLI(t, "", args...)
			if err != nil {
				t.Fatalf("command failed: %v", err)
			}
			if !strings.Contains(out, tt.event) {
				t.Errorf("output %q missing %s", out, tt.event)
			}
			reqs := srv.seen()
			if len(reqs) != 1 || reqs[0].Method != tt.method || reqs[0].Path != tt.path {
				t.Errorf("unexpected requests %+v", reqs)
			}
		})
	}
}

func TestSessionsList(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/dm/session", http.StatusOK,
		`[{"_id": "sess-1", "ownerId": "u1", "dataSet": [{"itemId": "i1", "mountPath": "/a"}]}, {"_id": "sess-2", "ownerId": "u1"}]`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	for _, want := range []string{"ITEMS", "sess-1", "sess-2", "u1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "sessions", "list", "--json")
	if err != nil {
		t.Fatalf("sessions list --json failed: %v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 2 || got[0]["_id"] != "sess-1" {
		t.Errorf("unexpected listing %v", got)
	}
}

func TestSessionsDeleteAskedAndDeclined(t *testing.T) {
	srv := newFakeServer(t)

	_, stderr, err := runCLI(t, "n\n", "--api-url", srv.URL, "--token", "tok", "sessions", "delete")
	if err != nil {
		t.Fatalf("sessions delete failed: %v", err)
	}
	if !strings.Contains(stderr, "Aborted.") {
		t.Errorf("stderr %q does not report the abort", stderr)
	}
	if len(srv.seen()) != 0 {
		t.Error("no request should be sent when the prompt is declined")
	}
}

func TestReadDataSet(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ds.json")
	if err := os.WriteFile(file, []byte("  [1]\n"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		stdin   string
		args    []string
		file    string
		want    string
		wantErr bool
	}{
		{name: "argument", args: []string{"[2]"}, want: "[2]"},
		{name: "file", file: file, want: "[1]"},
		{name: "stdin", stdin: "[3]\n", file: "-", want: "[3]"},
		{name: "both", args: []string{"[2]"}, file: file, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "missing file", file: filepath.Join(dir, "nope.json"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readDataSet(strings.NewReader(tt.stdin), tt.args, tt.file)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransfersList(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/dm/session/s1/transfer", http.StatusOK, `[
		{"_id": "t1", "status": 2, "size": 2000, "transferred": 1000, "path": "/data/a.csv", "itemId": "i1"},
		{"_id": "t2", "status": 3, "size": 10, "transferred": 10, "path": "/data/b.csv", "itemId": "i2"}
	]`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "transfers", "list", "--session", "s1")
	if err != nil {
		t.Fatalf("transfers list failed: %v", err)
	}
	for _, want := range []string{"t1", "50%", "/data/a.csv", "t2", "100%", "Transferring 1, Done 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTransfersListJSON(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/dm/transfer", http.StatusOK,
		`[{"_id": "t1", "status": 1, "size": 100, "transferred": 0, "path": "/x", "itemId": "i1"}]`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "transfers", "list", "--json")
	if err != nil {
		t.Fatalf("transfers list failed: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0]["_id"] != "t1" {
		t.Errorf("unexpected listing %v", got)
	}
}

func TestSettingsGet(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/system/setting", http.StatusOK,
		`{"dm.gc_run_interval": 600, "dm.private_storage_path": "/tmp/ps"}`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok",
		"settings", "get", "dm.gc_run_interval", "dm.private_storage_path")
	if err != nil {
		t.Fatalf("settings get failed: %v", err)
	}
	for _, want := range []string{"dm.gc_run_interval", "600", "/tmp/ps"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSettingsGetUnknownKey(t *testing.T) {
	srv := newFakeServer(t)

	_, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "settings", "get", "dm.nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(srv.seen()) != 0 {
		t.Error("unknown keys must be rejected before any request")
	}
}

func TestSettingsSetNormalizesValues(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodPut, "/system/setting", http.StatusOK, `true`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok",
		"settings", "set", "dm.private_storage_capacity=1KB", "dm.gc_run_interval=30")
	if err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	if !strings.Contains(out, "dm.private_storage_capacity = 1000") {
		t.Errorf("unexpected output %q", out)
	}

	reqs := srv.seen()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	form, err := url.ParseQuery(reqs[0].Body)
	if err != nil {
		t.Fatal(err)
	}
	var list []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(form.Get("list")), &list); err != nil {
		t.Fatalf("list is not JSON: %v", err)
	}
	if len(list) != 2 || list[0].Value != "1000" || list[1].Value != "30" {
		t.Errorf("unexpected settings sent: %+v", list)
	}
}

func TestSettingsSetChecksFractionAgainstServer(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/system/setting", http.StatusOK, `{"dm.gc_collect_end_fraction": 0.8}`)

	_, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok",
		"settings", "set", "dm.gc_collect_start_fraction=0.5")
	if err == nil {
		t.Fatal("expected the end fraction above start to be rejected")
	}
	for _, r := range srv.seen() {
		if r.Method == http.MethodPut {
			t.Error("settings must not be written after a failed check")
		}
	}
}

func TestSettingsSetServerRejection(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodPut, "/system/setting", http.StatusBadRequest,
		`{"message": "Invalid path", "type": "validation", "field": "value"}`)

	_, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok",
		"settings", "set", "dm.private_storage_path=/nowhere")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "settings not saved: Invalid path" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWatchOnce(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/dm/testing/container", http.StatusOK, `[{"_id": "c1", "status": "Running"}]`)
	srv.handle(http.MethodGet, "/dm/transfer", http.StatusOK,
		`[{"_id": "t9", "status": 2, "size": 4, "transferred": 1, "path": "/data/q", "itemId": "i"}]`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "watch", "--once")
	if err != nil {
		t.Fatalf("watch --once failed: %v", err)
	}
	for _, want := range []string{"Containers (1)", "c1", "Transfers (1, 1 active)", "t9", "25%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "placeholder") {
		t.Error("placeholder is off by default")
	}
}

func TestWatchOncePlaceholder(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/dm/testing/container", http.StatusOK, `[]`)
	srv.handle(http.MethodGet, "/dm/transfer", http.StatusOK, `[]`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "watch", "--once", "--placeholder")
	if err != nil {
		t.Fatalf("watch --once failed: %v", err)
	}
	if !strings.Contains(out, "(placeholder data)") || !strings.Contains(out, "/placeholder") {
		t.Errorf("placeholder transfer not rendered:\n%s", out)
	}
}

func TestWatchRejectsUnknownView(t *testing.T) {
	_, _, err := runCLI(t, "", "--api-url", "http://127.0.0.1:1/api/v1", "--token", "tok", "watch", "--view", "pie")
	if err == nil || !strings.Contains(err.Error(), "--view") {
		t.Errorf("expected --view error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "dmwatch ") {
		t.Errorf("unexpected output %q", out)
	}
}
