package transfer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLocal_FetchCopiesRegularFiles(t *testing.T) {
	src := t.TempDir()
	staging := filepath.Join(t.TempDir(), "raw")

	files := map[string]string{"a.csv": "x,y\n1,2\n", "b.jsonl": "{\"x\":1}\n"}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := NewLocal(src, testLogger).Fetch(context.Background(), staging)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || filepath.Base(got[0]) != "a.csv" || filepath.Base(got[1]) != "b.jsonl" {
		t.Fatalf("unexpected staged files: %v", got)
	}
	for _, p := range got {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != files[filepath.Base(p)] {
			t.Errorf("content mismatch for %s", p)
		}
	}

	entries, _ := os.ReadDir(staging)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".partial-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestLocal_FetchSkipsAlreadyStagedFiles(t *testing.T) {
	src := t.TempDir()
	staging := filepath.Join(t.TempDir(), "raw")
	path := filepath.Join(src, "a.csv")
	if err := os.WriteFile(path, []byte("x,y\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLocal(src, testLogger)

	first, err := l.Fetch(context.Background(), staging)
	if err != nil || len(first) != 1 {
		t.Fatalf("first fetch: %v, %v", first, err)
	}
	// The ingester archives staged files between fetches.
	if err := os.Remove(first[0]); err != nil {
		t.Fatal(err)
	}

	second, err := l.Fetch(context.Background(), staging)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("unchanged file fetched again: %v", second)
	}

	// A fresh instance reads the manifest back from disk.
	if again, err := NewLocal(src, testLogger).Fetch(context.Background(), staging); err != nil || len(again) != 0 {
		t.Fatalf("manifest not persisted: %v, %v", again, err)
	}

	if err := os.WriteFile(path, []byte("x,y\n1,2\n3,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	third, err := l.Fetch(context.Background(), staging)
	if err != nil {
		t.Fatalf("third fetch: %v", err)
	}
	if len(third) != 1 {
		t.Fatalf("changed file must be fetched again, got %v", third)
	}
}

func TestLocal_FetchMissingSource(t *testing.T) {
	_, err := NewLocal(filepath.Join(t.TempDir(), "missing"), testLogger).Fetch(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a missing source directory")
	}
}

func TestSFTP_FetchFailsWhenUnreachable(t *testing.T) {
	s := NewSFTP(SFTPConfig{
		Host:       "127.0.0.1",
		Port:       1,
		User:       "testuser",
		Password:   "testpassword",
		RemotePath: "/upload",
		Timeout:    200 * time.Millisecond,
	}, testLogger)

	if _, err := s.Fetch(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected a dial error")
	}
}

func TestSFTP_BadKeyPath(t *testing.T) {
	s := NewSFTP(SFTPConfig{Host: "127.0.0.1", Port: 22, KeyPath: filepath.Join(t.TempDir(), "nope")}, testLogger)
	if _, err := s.Fetch(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected an error for an unreadable key")
	}
}
