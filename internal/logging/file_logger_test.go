package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var entries []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not a LogEntry: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func newTestFileLogger(t *testing.T, cfg FileLoggerConfig) (*FileLogger, string) {
	t.Helper()
	if cfg.FilePath == "" {
		cfg.FilePath = filepath.Join(t.TempDir(), "logs", "bimview.log")
	}
	l, err := NewFileLogger(cfg)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	return l, cfg.FilePath
}

func TestFileLogger_BatchLinesDecode(t *testing.T) {
	l, path := newTestFileLogger(t, FileLoggerConfig{Level: DEBUG})

	l.Info("Batch finished",
		F("loaded", 2),
		F("failed", 1),
		F("duration", 1500*time.Millisecond),
	)
	l.WithTraceID("batch-42").Warn("Companion missing",
		F("file", "HV1.gltf"),
		F("error", errors.New("HV1.bin not found")),
	)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Level != "INFO" || first.Message != "Batch finished" || first.TraceID != "" {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not decoded")
	}
	if first.Fields["loaded"] != float64(2) {
		t.Errorf("loaded = %v", first.Fields["loaded"])
	}
	if first.Fields["duration"] != float64(1500) {
		t.Errorf("durations are written in milliseconds, got %v", first.Fields["duration"])
	}

	second := entries[1]
	if second.Level != "WARN" || second.TraceID != "batch-42" {
		t.Errorf("unexpected second entry: %+v", second)
	}
	if second.Fields["error"] != "HV1.bin not found" {
		t.Errorf("errors are written as strings, got %v", second.Fields["error"])
	}
}

func TestFileLogger_LevelSharedWithDerivedLoggers(t *testing.T) {
	l, path := newTestFileLogger(t, FileLoggerConfig{Level: WARN})
	traced := l.WithTraceID("t1")

	traced.Info("Listing folder")
	l.SetLevel(DEBUG)
	traced.Debug("Cached folder listing")
	l.SetLevel(ERROR)
	traced.Warn("Folder listing failed")
	l.Error("Scene initialization failed")
	l.Close()

	var got []string
	for _, e := range readEntries(t, path) {
		got = append(got, e.Level+" "+e.Message)
	}
	want := []string{"DEBUG Cached folder listing", "ERROR Scene initialization failed"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFileLogger_WithContext(t *testing.T) {
	l, path := newTestFileLogger(t, FileLoggerConfig{Level: INFO})

	if l.WithContext(t.Context()) != Logger(l) {
		t.Error("a context without trace ID should return the same logger")
	}
	l.WithContext(ContextWithTraceID(t.Context(), "req-7")).Info("Project opened")
	l.Close()

	entries := readEntries(t, path)
	if len(entries) != 1 || entries[0].TraceID != "req-7" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFileLogger_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bimview.log")
	l, _ := newTestFileLogger(t, FileLoggerConfig{
		FilePath:      path,
		Level:         INFO,
		MaxFileSize:   256,
		RotateEnabled: true,
	})

	for i := 0; i < 20; i++ {
		l.Info("Downloaded item", F("fileId", "01ABCDEF"), F("bytes", 4096))
	}
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "bimview.log*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) < 2 {
		t.Fatalf("expected the live file plus a rotated one, got %v", files)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 512 {
		t.Errorf("live file was not rotated, size %d", info.Size())
	}
	for _, e := range readEntries(t, path) {
		if e.Message != "Downloaded item" {
			t.Errorf("unexpected entry after rotation: %+v", e)
		}
	}
}

func TestFileLogger_NoRotationWithoutLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bimview.log")
	l, _ := newTestFileLogger(t, FileLoggerConfig{FilePath: path, Level: INFO, RotateEnabled: true})

	for i := 0; i < 50; i++ {
		l.Info("Downloaded item", F("bytes", i))
	}
	l.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "bimview.log*"))
	if len(files) != 1 {
		t.Errorf("expected a single file, got %v", files)
	}
	if n := len(readEntries(t, path)); n != 50 {
		t.Errorf("expected 50 entries, got %d", n)
	}
}

func TestFileLogger_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bimview.log")

	for _, msg := range []string{"first run", "second run"} {
		l, _ := newTestFileLogger(t, FileLoggerConfig{FilePath: path, Level: INFO})
		l.Info(msg)
		l.Close()
	}

	entries := readEntries(t, path)
	if len(entries) != 2 || entries[0].Message != "first run" || entries[1].Message != "second run" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestRotatingFile_WriteAfterClose(t *testing.T) {
	out, err := openRotatingFile(filepath.Join(t.TempDir(), "x.log"), 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := out.Write([]byte("late")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("expected os.ErrClosed, got %v", err)
	}
}
