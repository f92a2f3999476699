package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestSetup_JSONOutput はSetupがJSON形式でログを出力することを検証する。
func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("resolver initialized", slog.String("cache", "memory"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["msg"] != "resolver initialized" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["cache"] != "memory" {
		t.Errorf("unexpected cache attr: %v", entry["cache"])
	}
}

// TestSetup_DebugSuppressed はデフォルトレベルがInfoであることを検証する。
func TestSetup_DebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("debug log should be suppressed, got: %s", buf.String())
	}
}

// TestSetupDefault_SetsGlobal はグローバルロガーが設定されることを検証する。
func TestSetupDefault_SetsGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Info("global log test")

	if buf.Len() == 0 {
		t.Error("expected output via global logger")
	}
}
