package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "prod")
	logger.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev: %s", buf.String())
	}

	buf.Reset()
	dev := Component(New(&buf, "dev"), "dispatcher")
	dev.Debug().Msg("видно")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали JSON-запись: %v", err)
	}
	if entry["component"] != "dispatcher" {
		t.Fatalf("ожидали поле component, получили %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("ожидали метку времени в записи")
	}
}
