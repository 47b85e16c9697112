package cli

import (
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// TestPsShortcut tests the ps shortcut command
func TestPsShortcut(t *testing.T) {
	cmd := newPsShortcut()
	if cmd.Use != "ps" {
		t.Errorf("Expected Use='ps', got '%s'", cmd.Use)
	}
	if cmd.Short == "" {
		t.Error("Short description is empty")
	}
	if cmd.Flags().Lookup("json") == nil {
		t.Error("--json flag not found")
	}
}

// TestRmShortcut tests the rm shortcut command
func TestRmShortcut(t *testing.T) {
	cmd := newRmShortcut()
	if !strings.HasPrefix(cmd.Use, "rm ") {
		t.Errorf("Expected Use to start with 'rm', got '%s'", cmd.Use)
	}
	if cmd.Args == nil {
		t.Fatal("Args validator is nil")
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("rm without ids should be rejected")
	}
}

// TestAddShortcuts tests that shortcuts are added to root command
func TestAddShortcuts(t *testing.T) {
	rootCmd := &cobra.Command{Use: "test"}
	AddShortcuts(rootCmd)

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ps", "rm"} {
		if !names[want] {
			t.Errorf("shortcut %q not registered", want)
		}
	}
}

// TestPsListsContainers runs ps against a fake server
func TestPsListsContainers(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodGet, "/dm/testing/container", http.StatusOK,
		`[{"_id": "c-one", "status": "Running", "sessionId": "s1"}, {"_id": "c-two", "status": "Stopped", "error": "boom"}]`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "ps")
	if err != nil {
		t.Fatalf("ps failed: %v", err)
	}
	for _, want := range []string{"c-one", "Running", "s1", "c-two", "Stopped", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestRmRemovesEachContainer sends one DELETE per id, in order
func TestRmRemovesEachContainer(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodDelete, "/dm/testing/container/a", http.StatusOK, `null`)
	srv.handle(http.MethodDelete, "/dm/testing/container/b", http.StatusOK, `null`)

	out, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "rm", "a", "b")
	if err != nil {
		t.Fatalf("rm failed: %v", err)
	}
	if !strings.Contains(out, "container_removed (a)") || !strings.Contains(out, "container_removed (b)") {
		t.Errorf("unexpected output %q", out)
	}

	reqs := srv.seen()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	for i, id := range []string{"a", "b"} {
		if reqs[i].Method != http.MethodDelete || reqs[i].Path != "/dm/testing/container/"+id {
			t.Errorf("request %d = %s %s", i, reqs[i].Method, reqs[i].Path)
		}
	}
}

// TestRmStopsAtFirstFailure leaves later ids alone
func TestRmStopsAtFirstFailure(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(http.MethodDelete, "/dm/testing/container/b", http.StatusOK, `null`)

	_, _, err := runCLI(t, "", "--api-url", srv.URL, "--token", "tok", "rm", "missing", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "remove_container missing") {
		t.Errorf("unexpected error: %v", err)
	}
	if n := len(srv.seen()); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}
