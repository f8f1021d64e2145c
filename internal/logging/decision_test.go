package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecisionLoggerWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDecisionLogger(&buf)

	err := logger.Write(Decision{
		Timestamp:  time.Unix(0, 0).UTC(),
		RequestID:  "req-1",
		ClientIP:   "203.0.113.7",
		Method:     "GET",
		Path:       "/search",
		Action:     ActionBlock,
		Phase:      "uri",
		StatusCode: 403,
	})
	if err != nil {
		t.Fatalf("write error: %v", err)
	}

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("expected newline-terminated record")
	}

	var decoded Decision
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded.Action != ActionBlock || decoded.Phase != "uri" || decoded.StatusCode != 403 {
		t.Fatalf("unexpected decision %+v", decoded)
	}
}

func TestDecisionLoggerTruncatesRuleLog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDecisionLogger(&buf)

	if err := logger.Write(Decision{RuleLog: strings.Repeat("x", maxRuleLog+100)}); err != nil {
		t.Fatalf("write error: %v", err)
	}

	var decoded Decision
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(decoded.RuleLog) != maxRuleLog {
		t.Fatalf("expected rule log truncated to %d, got %d", maxRuleLog, len(decoded.RuleLog))
	}
}
