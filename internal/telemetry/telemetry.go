// Package telemetry records a CSV trace of events dispatched through the AO
// runtime, at most one row per configured interval, rotating files the same way the teacher's CSV data
// logger did for ECU/GPS samples — here the columns are AO name, signal,
// and (for axis-producing signals) the 18 current angles, rather than
// sensor fields.
package telemetry

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/servo"
)

// Config mirrors how the rest of this module's ambient stack is
// configured (yaml tags, sane zero-value defaults).
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	IntervalMs int    `yaml:"interval_ms"`
}

const maxRowsPerFile = 100_000

var csvHeader = func() []string {
	h := []string{"timestamp", "ao", "signal"}
	for i := 0; i < servo.Count; i++ {
		h = append(h, fmt.Sprintf("angle_%d", i))
	}
	return h
}()

// Logger records timestamped AO dispatch events to rotating CSV files.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// New creates a Logger from cfg, defaulting an empty path to a fixed
// directory and a too-small interval to 100ms (10 Hz), matching the
// teacher's logger defaults.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/servoctl"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &Logger{dir: cfg.Path, interval: interval, enabled: cfg.Enabled}
}

// SetEnabled toggles logging at runtime, closing the current file when
// disabled.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled reports whether logging is currently active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes one dispatch event — ao name, signal name, and the servo
// map's current angles — if the minimum interval has elapsed since the
// last row.
func (l *Logger) Record(now time.Time, aoName, signal string, m *servo.Map) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[telemetry] rotate failed: %v", err)
			return
		}
	}

	row := l.buildRow(now, aoName, signal, m)
	if err := l.writer.Write(row); err != nil {
		log.Printf("[telemetry] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("servoctl_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[telemetry] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) buildRow(ts time.Time, aoName, signal string, m *servo.Map) []string {
	row := make([]string, len(csvHeader))
	row[0] = ts.Format(time.RFC3339Nano)
	row[1] = aoName
	row[2] = signal
	if m != nil {
		for i := 0; i < servo.Count && i < len(m.Axes); i++ {
			row[3+i] = fmt.Sprintf("%.2f", m.Axes[i].CurrentAngleDeg)
		}
	}
	return row
}

// TracingAO wraps an ao.AO so every dispatched event is traced through a
// Logger before being forwarded to the wrapped implementation.
type TracingAO struct {
	name     string
	inner    ao.AO
	log      *Logger
	servoMap *servo.Map
}

// Wrap decorates inner with event tracing under name, reading axis angles
// from servoMap for each row.
func Wrap(name string, inner ao.AO, log *Logger, servoMap *servo.Map) *TracingAO {
	return &TracingAO{name: name, inner: inner, log: log, servoMap: servoMap}
}

// Dispatch implements ao.AO: it records the event, then forwards it.
func (t *TracingAO) Dispatch(ev ao.Event) {
	t.log.Record(time.Now(), t.name, ev.Sig().String(), t.servoMap)
	t.inner.Dispatch(ev)
}
