package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/absfs/jdfs"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    jdfs.BucketFilter
		wantErr bool
	}{
		{"", jdfs.AllBuckets, false},
		{"ALL", jdfs.AllBuckets, false},
		{"legacy", jdfs.LegacyOnly, false},
		{"advanced", jdfs.AdvancedOnly, false},
		{"compatibility", jdfs.CompatOnly, false},
		{"weird", 0, true},
	}
	for _, tt := range tests {
		got, err := parseFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseFilter(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseFilter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHumanizeBytes(t *testing.T) {
	if got := humanizeBytes(0); got != "0B" {
		t.Errorf("humanizeBytes(0) = %q", got)
	}
	if got := humanizeBytes(1500); got != "1.5kB" {
		t.Errorf("humanizeBytes(1500) = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug", "json"); err != nil {
		t.Errorf("newLogger(debug, json) failed: %v", err)
	}
	if _, err := newLogger("loud", "json"); err == nil {
		t.Error("invalid level accepted")
	}
	if _, err := newLogger("info", "xml"); err == nil {
		t.Error("invalid format accepted")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := expandPath("~/jdfs.yaml")
	if err != nil || got != filepath.Join(home, "jdfs.yaml") {
		t.Errorf("expandPath = %q, %v", got, err)
	}
	got, err = expandPath("/etc/jdfs.yaml")
	if err != nil || got != filepath.Clean("/etc/jdfs.yaml") {
		t.Errorf("expandPath = %q, %v", got, err)
	}
}

func runCLI(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{
		"--endpoint", endpoint,
		"--insecure",
		"--path-style",
		"--access-key", "AKIDEXAMPLE",
		"--secret-key", "secret",
		"--log-level", "error",
	}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	server := httptest.NewServer(gofakes3.New(s3mem.New(), gofakes3.WithTimeSkewLimit(0)).Server())
	t.Cleanup(server.Close)
	endpoint := strings.TrimPrefix(server.URL, "http://")

	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, []byte("remember the milk"), 0644); err != nil {
		t.Fatal(err)
	}

	steps := [][]string{
		{"mkbucket", "home"},
		{"mkdir", "-p", "home", "/a/b"},
		{"put", "home", src, "/a/notes.txt"},
	}
	for _, args := range steps {
		if _, err := runCLI(t, endpoint, args...); err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
	}

	out, err := runCLI(t, endpoint, "buckets", "--filter", "advanced")
	if err != nil || !strings.Contains(out, "home") {
		t.Errorf("buckets = %q, %v", out, err)
	}

	out, err = runCLI(t, endpoint, "ls", "home", "/a")
	if err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	if !strings.Contains(out, "b/") || !strings.Contains(out, "notes.txt") || !strings.Contains(out, "17B") {
		t.Errorf("ls output = %q", out)
	}

	out, err = runCLI(t, endpoint, "get", "home", "/a/notes.txt", "-")
	if err != nil || out != "remember the milk" {
		t.Errorf("get = %q, %v", out, err)
	}

	dest := filepath.Join(dir, "out", "copy.txt")
	if _, err := runCLI(t, endpoint, "get", "home", "/a/notes.txt", dest); err != nil {
		t.Fatalf("get to file failed: %v", err)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "remember the milk" {
		t.Errorf("downloaded = %q, %v", data, err)
	}

	out, err = runCLI(t, endpoint, "audit", "home")
	if err != nil || out != "" {
		t.Errorf("audit = %q, %v", out, err)
	}

	if _, err := runCLI(t, endpoint, "rm", "home", "/a/notes.txt"); err != nil {
		t.Fatalf("rm failed: %v", err)
	}
	if _, err := runCLI(t, endpoint, "get", "home", "/a/notes.txt", "-"); err == nil {
		t.Error("get after rm succeeded")
	}
	if _, err := runCLI(t, endpoint, "mkbucket", "home"); err == nil {
		t.Error("duplicate mkbucket succeeded")
	}
}
