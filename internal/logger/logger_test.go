package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("alert queued", KeyEntryID, int64(42), KeyQueueLen, 3)

	out := buf.String()
	if !strings.Contains(out, "alert queued") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "entry_id=42") {
		t.Errorf("expected entry_id field, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("drain complete", KeyDelivered, 2, KeyRemaining, 1)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "drain complete" {
		t.Errorf("expected msg field, got %v", record["msg"])
	}
	if record[KeyDelivered] != float64(2) {
		t.Errorf("expected delivered=2, got %v", record[KeyDelivered])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("should not appear")
	Info("should not appear either")
	Warn("visible warning")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug/info leaked through WARN level: %q", out)
	}
	if !strings.Contains(out, "visible warning") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("NOISY") // ignored

	Info("still info")
	if !strings.Contains(buf.String(), "still info") {
		t.Errorf("expected info output after invalid SetLevel")
	}
}
