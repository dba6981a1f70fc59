package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/legendaryobs/crystal"
)

// setup points the CLI at a fresh Badger directory.
func setup(t *testing.T) {
	t.Helper()
	t.Setenv("CRYSTAL_BACKEND_DRIVER", "badger")
	t.Setenv("CRYSTAL_BACKEND_BADGER_DIR", t.TempDir())
	t.Setenv("CRYSTAL_LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, verbose = "", false
	putMetadata = ""
	outputJSON = false
	searchCategory, searchPattern, searchLimit, searchJSON = "", "", crystal.DefaultSearchLimit, false
	if f := rootCmd.Flags().Lookup("help"); f != nil {
		f.Value.Set("false")
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("crystal %s error = %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRootCommand_Help(t *testing.T) {
	out := mustExecute(t, "--help")
	for _, want := range []string{"put", "get", "search", "stats", "monitor", "snapshot", "--config"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestPutGet(t *testing.T) {
	setup(t)

	id := strings.TrimSpace(mustExecute(t, "put", "workflow", `{"steps":["plan","ship"]}`, "--metadata", `{"team":"core"}`))
	if len(id) != 12 {
		t.Fatalf("put printed %q, want a 12-character id", id)
	}

	again := strings.TrimSpace(mustExecute(t, "put", "workflow", `{"steps": ["plan", "ship"]}`))
	if again != id {
		t.Errorf("second put = %q, want %q", again, id)
	}

	out := mustExecute(t, "get", id)
	if !strings.Contains(out, "Category:   workflow") || !strings.Contains(out, "Accesses:   1") {
		t.Errorf("get output:\n%s", out)
	}

	out = mustExecute(t, "get", id, "--json")
	var rec crystal.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("get --json output is not a record: %v\n%s", err, out)
	}
	if rec.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", rec.AccessCount)
	}
}

func TestPut_InvalidMetadata(t *testing.T) {
	setup(t)

	if _, err := execute(t, "put", "debug", "oops", "--metadata", "{"); err == nil {
		t.Error("put expected error for invalid metadata")
	}
}

func TestGet_NotFound(t *testing.T) {
	setup(t)

	_, err := execute(t, "get", "000000000000")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("get error = %v, want not found", err)
	}
}

func TestSearch(t *testing.T) {
	setup(t)

	mustExecute(t, "put", "workflow", "deploy on friday")
	mustExecute(t, "put", "workflow", "write tests")
	mustExecute(t, "put", "debug", "DEPLOY rollback")

	out := mustExecute(t, "search", "--pattern", "deploy", "--json")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Errorf("search --pattern deploy returned %d lines, want 2:\n%s", len(lines), out)
	}

	out = mustExecute(t, "search", "--category", "debug")
	if !strings.Contains(out, "rollback") || strings.Contains(out, "friday") {
		t.Errorf("search --category debug output:\n%s", out)
	}

	out = mustExecute(t, "search", "--category", "social")
	if !strings.Contains(out, "No crystals found.") {
		t.Errorf("empty search output:\n%s", out)
	}
}

func TestStats(t *testing.T) {
	setup(t)

	mustExecute(t, "put", "creative", "sketch")
	mustExecute(t, "put", "creative", "melody")
	mustExecute(t, "put", "social", "standup")

	out := mustExecute(t, "stats")
	for _, want := range []string{"Backend:    badger (durable)", "Crystals:   3", "creative", "social"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestCategories(t *testing.T) {
	out := mustExecute(t, "categories")
	for _, c := range crystal.Categories() {
		if !strings.Contains(out, c.Name) {
			t.Errorf("categories output missing %q", c.Name)
		}
	}
}

func TestSnapshot(t *testing.T) {
	setup(t)
	t.Setenv("CRYSTAL_SNAPSHOT_SINK", "disk")
	t.Setenv("CRYSTAL_SNAPSHOT_DIR", t.TempDir())

	id := strings.TrimSpace(mustExecute(t, "put", "achievement", "shipped v1"))

	out := mustExecute(t, "snapshot", "export")
	if !strings.Contains(out, "Exported 1 crystals") {
		t.Errorf("export output: %s", out)
	}

	// Import into an empty database.
	t.Setenv("CRYSTAL_BACKEND_BADGER_DIR", t.TempDir())
	out = mustExecute(t, "snapshot", "import")
	if !strings.Contains(out, "Imported 1 crystals") {
		t.Errorf("import output: %s", out)
	}
	mustExecute(t, "get", id)
}

func TestSnapshot_NoSink(t *testing.T) {
	setup(t)

	if _, err := execute(t, "snapshot", "export"); err == nil {
		t.Error("snapshot export expected error without a sink")
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{`{"a":1}`, "map[string]interface {}"},
		{`[1,2]`, "[]interface {}"},
		{`42`, "float64"},
		{`plain text`, "string"},
		{`"quoted"`, "string"},
	}
	for _, tt := range tests {
		got := fmt.Sprintf("%T", parsePattern(tt.arg))
		if got != tt.want {
			t.Errorf("parsePattern(%q) type = %s, want %s", tt.arg, got, tt.want)
		}
	}
}

