package main

import (
	"bytes"
	"testing"

	"mpd-sim/internal/config"
	"mpd-sim/internal/sim"
	"mpd-sim/internal/telemetry"
)

func withTTY(t *testing.T, tty bool) {
	t.Helper()
	orig := stdoutIsTerminal
	stdoutIsTerminal = func() bool { return tty }
	t.Cleanup(func() { stdoutIsTerminal = orig })
}

func TestResolveOutput(t *testing.T) {
	cases := []struct {
		mode string
		tty  bool
		want string
	}{
		{"auto", true, outputColor},
		{"auto", false, outputJSON},
		{"", false, outputJSON},
		{"json", true, outputJSON},
		{"tui", false, outputTUI},
		{"none", true, outputNone},
	}
	for _, c := range cases {
		got, err := resolveOutput(c.mode, c.tty)
		if err != nil {
			t.Fatalf("resolveOutput(%q, %v) returned error: %v", c.mode, c.tty, err)
		}
		if got != c.want {
			t.Errorf("resolveOutput(%q, %v) = %q, want %q", c.mode, c.tty, got, c.want)
		}
	}
	if _, err := resolveOutput("greptime", false); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}

func TestNewWriterJSON(t *testing.T) {
	withTTY(t, false)
	buf := &bytes.Buffer{}
	w, cleanup, err := newWriter(config.Default(), "auto", buf)
	if err != nil {
		t.Fatalf("newWriter returned error: %v", err)
	}
	defer cleanup()
	if _, ok := w.(*sim.MultiWriter); !ok {
		t.Fatalf("expected *sim.MultiWriter, got %T", w)
	}
	if err := w.Write(telemetry.SampleRow{Channel: telemetry.ChannelFlow}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("{")) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}

func TestNewWriterColor(t *testing.T) {
	withTTY(t, true)
	buf := &bytes.Buffer{}
	w, cleanup, err := newWriter(config.Default(), "auto", buf)
	if err != nil {
		t.Fatalf("newWriter returned error: %v", err)
	}
	defer cleanup()
	if err := w.Write(telemetry.SampleRow{Channel: telemetry.ChannelFlow}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("Simulation Configuration:")) {
		t.Fatalf("expected colorized overview, got %q", buf.String())
	}
}

func TestNewWriterNone(t *testing.T) {
	w, cleanup, err := newWriter(config.Default(), "none", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newWriter returned error: %v", err)
	}
	cleanup()
	if w != nil {
		t.Fatalf("expected nil writer, got %T", w)
	}
}

func TestNewWriterUnknown(t *testing.T) {
	if _, _, err := newWriter(config.Default(), "file", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}
