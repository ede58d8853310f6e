package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("not-a-level", &buf)

	logger.Debug("hidden")
	logger.Info("visible", "phone", "+70000000000")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "visible" {
		t.Fatalf("unexpected message %v", line["msg"])
	}
}
