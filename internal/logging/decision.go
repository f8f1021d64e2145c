package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"
)

const maxRuleLog = 512

const (
	ActionPass     = "pass"
	ActionBlock    = "block"
	ActionRedirect = "redirect"
	ActionError    = "error"
)

// Decision is written as a single JSON object per request.
type Decision struct {
	Timestamp   time.Time `json:"ts"`
	RequestID   string    `json:"request_id"`
	ClientIP    string    `json:"client_ip"`
	Host        string    `json:"host"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Action      string    `json:"action"`
	Phase       string    `json:"phase,omitempty"`
	StatusCode  int       `json:"status_code"`
	RuleLog     string    `json:"rule_log,omitempty"`
	RateLimited bool      `json:"rate_limited,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}

type DecisionLogger struct {
	w io.Writer
}

func NewDecisionLogger(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

func OpenDecisionLog(path string) (*DecisionLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewDecisionLogger(file), file.Close, nil
}

func (l *DecisionLogger) Write(decision Decision) error {
	if len(decision.RuleLog) > maxRuleLog {
		decision.RuleLog = decision.RuleLog[:maxRuleLog]
	}

	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	_, err = l.w.Write(append(data, '\n'))
	return err
}
