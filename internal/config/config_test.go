package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsMatchFixedParameters(t *testing.T) {
	d := Defaults()
	if d.Servo.PulseMinUs != 500 || d.Servo.PulseMaxUs != 2500 || d.Servo.PulseCenterUs != 1500 {
		t.Fatalf("servo pulse defaults = %+v", d.Servo)
	}
	if d.Servo.SafetyTimeoutMs != 3000 {
		t.Fatalf("SafetyTimeoutMs = %d, want 3000", d.Servo.SafetyTimeoutMs)
	}
	if d.Motion.PlannerBufferSize != 32 || d.Motion.InterpTickMs != 20 || d.Motion.SchedulerTickMs != 10 {
		t.Fatalf("motion tick defaults = %+v", d.Motion)
	}
	if d.Motion.JunctionDeviation != 0.05 || d.Motion.MinJunctionSpeed != 5 {
		t.Fatalf("junction defaults = %+v", d.Motion)
	}
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if cfg.Transport.BaudRate != 115200 {
		t.Fatalf("BaudRate = %d, want default 115200", cfg.Transport.BaudRate)
	}
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := "transport:\n  device: /dev/ttyUSB3\n  baud_rate: 9600\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := Load(path)
	if cfg.Transport.Device != "/dev/ttyUSB3" || cfg.Transport.BaudRate != 9600 {
		t.Fatalf("Transport = %+v, want overridden device/baud", cfg.Transport)
	}
	// Fields not present in the YAML keep their defaults.
	if cfg.Servo.PulseMinUs != 500 {
		t.Fatalf("PulseMinUs = %d, want default 500 preserved", cfg.Servo.PulseMinUs)
	}
}

func TestEnvOverrideTakesPrecedence(t *testing.T) {
	t.Setenv("SERVOCTL_DEVICE", "/dev/ttyACM9")
	cfg := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Transport.Device != "/dev/ttyACM9" {
		t.Fatalf("Transport.Device = %s, want env override", cfg.Transport.Device)
	}
}
