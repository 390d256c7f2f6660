package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sagostin/servoctl/internal/servo"
)

func TestDisabledLoggerWritesNothing(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir})
	l.Record(time.Now(), "motion", "MotionStart", servo.NewMap())

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written while disabled, got %d", len(entries))
	}
}

func TestRecordWritesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 1})
	m := servo.NewMap()
	m.Axes[0].CurrentAngleDeg = 45

	l.Record(time.Now(), "motion", "MotionStart", m)
	l.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one CSV file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "angle_0") {
		t.Fatalf("header missing angle_0 column: %s", lines[0])
	}
	if !strings.Contains(lines[1], "motion") || !strings.Contains(lines[1], "MotionStart") {
		t.Fatalf("row missing ao/signal fields: %s", lines[1])
	}
}

func TestIntervalThrottlesConsecutiveRecords(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 10_000})
	m := servo.NewMap()
	now := time.Now()

	l.Record(now, "motion", "MotionStart", m)
	l.Record(now.Add(1*time.Millisecond), "motion", "MotionStop", m)
	l.Close()

	data, err := os.ReadFile(mustSingleFile(t, dir))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected the second Record call to be throttled, got %d lines", len(lines))
	}
}

func mustSingleFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one file in %s", dir)
	}
	return filepath.Join(dir, entries[0].Name())
}
