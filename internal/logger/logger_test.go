package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureStdout runs f with os.Stdout redirected to a pipe and returns the output.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	f()

	_ = w.Close()
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("invalid json log: %v\n%s", err, line)
	}
	return payload
}

func TestLogger_IncludesStackAndServiceOnError(t *testing.T) {
	out := captureStdout(t, func() {
		log := New("test-service")
		err := errors.New("boom")
		log.Error().Stack().Err(err).Msg("something failed")
	})

	line := lastNonEmptyLine(out)
	if line == "" {
		t.Fatalf("no output captured")
	}
	payload := decodeLine(t, line)

	if svc, ok := payload["service"].(string); !ok || svc != "test-service" {
		t.Fatalf("expected service=\"test-service\", got %v", payload["service"])
	}
	if lvl, ok := payload["level"].(string); !ok || lvl != "error" {
		t.Fatalf("expected level=\"error\", got %v", payload["level"])
	}
	if _, ok := payload["stack"]; !ok {
		t.Fatalf("expected stack field in error log: %s", line)
	}
}

func TestNewWithOptions_Level(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithOptions("svc", Options{Level: "WARN", Stdout: &buf})
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Fatalf("info event passed a warn logger: %s", out)
	}
	if payload := decodeLine(t, out); payload["message"] != "shown" {
		t.Fatalf("unexpected event: %v", payload)
	}
}

func TestNewWithOptions_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithOptions("svc", Options{Level: "chatty", Stdout: &buf})
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Fatalf("expected exactly the info event, got %d lines: %s", got, buf.String())
	}
}

func TestNewWithOptions_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pulse.log")
	var buf bytes.Buffer
	log, closer := NewWithOptions("svc", Options{File: path, Stdout: &buf})
	log.Info().Str("k", "v").Msg("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if payload := decodeLine(t, lastNonEmptyLine(string(b))); payload["k"] != "v" {
		t.Fatalf("unexpected file event: %v", payload)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Fatalf("console sink missed the event: %s", buf.String())
	}
}

func TestNewWithOptions_CloserWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	log, closer := NewWithOptions("svc", Options{Stdout: &buf})
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	log.Info().Msg("still writes")
	if !strings.Contains(buf.String(), "still writes") {
		t.Fatalf("console sink stopped after close: %s", buf.String())
	}
}
