package inspect

import (
	"net/http"

	"github.com/wafgate/wafgate/internal/engine"
)

type OutcomeKind string

const (
	OutcomeStatus   OutcomeKind = "status"
	OutcomeRedirect OutcomeKind = "redirect"
)

// Outcome is a concrete HTTP result derived from a disruptive verdict. It
// replaces both the remaining inspection and the wrapped handler's output.
type Outcome struct {
	Kind   OutcomeKind
	Status int
	URL    string
	Phase  Phase
	Log    string
}

// Translate converts an engine verdict into an outcome, or nil when normal
// processing should continue. A verdict's log text is forwarded to the sink
// whether the verdict is disruptive or not; a redirect URL takes precedence
// over a status-code response. Engines that omit the status get 403.
func Translate(verdict *engine.Verdict, phase Phase, sink engine.LogSink) *Outcome {
	if verdict == nil {
		return nil
	}
	if verdict.Log != "" && sink != nil {
		sink(verdict.Log)
	}
	if !verdict.Disruptive {
		return nil
	}
	if verdict.URL != "" {
		return &Outcome{Kind: OutcomeRedirect, Status: http.StatusFound, URL: verdict.URL, Phase: phase, Log: verdict.Log}
	}
	status := verdict.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	return &Outcome{Kind: OutcomeStatus, Status: status, Phase: phase, Log: verdict.Log}
}
