// Package corazawaf binds the Coraza SecLang engine to the engine contract.
package corazawaf

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/corazawaf/coraza/v3"
	"github.com/corazawaf/coraza/v3/types"

	"github.com/wafgate/wafgate/internal/engine"
)

// Engine implements engine.Engine on top of Coraza. The log sink is
// registered once at construction and receives the error log of every
// matched rule, disruptive or not.
type Engine struct {
	sink engine.LogSink
}

func New(sink engine.LogSink) *Engine {
	return &Engine{sink: sink}
}

func (e *Engine) NewRuleSet() engine.RuleSet {
	return &ruleSet{eng: e}
}

// NewTransaction compiles the rule set on first use and opens a Coraza
// transaction against it. Compilation happens at most once; rule sets are
// loaded before traffic is accepted and are read-only afterwards.
func (e *Engine) NewTransaction(rules engine.RuleSet) (engine.Transaction, error) {
	rs, ok := rules.(*ruleSet)
	if !ok {
		return nil, fmt.Errorf("rule set was not produced by this engine")
	}
	rs.once.Do(func() {
		rs.waf, rs.err = rs.eng.compile(rs.sources)
	})
	if rs.err != nil {
		return nil, rs.err
	}
	return &transaction{inner: rs.waf.NewTransaction()}, nil
}

type source struct {
	file string
	text string
}

// ruleSet accumulates validated rule sources. Every Add validates the
// candidate set with a throwaway compile, so a malformed source is rejected
// without poisoning the sources already accepted.
type ruleSet struct {
	eng     *Engine
	sources []source

	once sync.Once
	waf  coraza.WAF
	err  error
}

func (rs *ruleSet) AddFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	candidate := append(append([]source(nil), rs.sources...), source{file: path})
	if _, err := rs.eng.compile(candidate); err != nil {
		return 0, err
	}
	rs.sources = candidate
	return countDirectives(string(data)), nil
}

func (rs *ruleSet) AddInline(text string) (int, error) {
	candidate := append(append([]source(nil), rs.sources...), source{text: text})
	if _, err := rs.eng.compile(candidate); err != nil {
		return 0, err
	}
	rs.sources = candidate
	return countDirectives(text), nil
}

func (e *Engine) compile(sources []source) (coraza.WAF, error) {
	cfg := coraza.NewWAFConfig().
		WithRequestBodyAccess().
		WithResponseBodyAccess()
	if e.sink != nil {
		sink := e.sink
		cfg = cfg.WithErrorCallback(func(rule types.MatchedRule) {
			sink(rule.ErrorLog())
		})
	}
	for _, src := range sources {
		if src.file != "" {
			cfg = cfg.WithDirectivesFromFile(src.file)
		} else {
			cfg = cfg.WithDirectives(src.text)
		}
	}
	return coraza.NewWAF(cfg)
}

// countDirectives counts SecRule and SecAction directives in a SecLang
// source. Coraza does not report how many rules a given load contributed,
// so the running total is derived from the directives themselves.
// Continuation lines (trailing backslash) belong to the directive above.
func countDirectives(src string) int {
	count := 0
	continued := false
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		wasContinued := continued
		continued = strings.HasSuffix(trimmed, "\\")
		if wasContinued || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "secrule", "secaction":
			count++
		}
	}
	return count
}

type transaction struct {
	inner types.Transaction
}

func (t *transaction) ProcessConnection(clientAddr string, clientPort int, serverName string, serverPort int) error {
	t.inner.ProcessConnection(clientAddr, clientPort, serverName, serverPort)
	return nil
}

func (t *transaction) ProcessURI(uri, method, proto string) error {
	t.inner.ProcessURI(uri, method, proto)
	return nil
}

func (t *transaction) AddRequestHeader(key, value string) error {
	t.inner.AddRequestHeader(key, value)
	return nil
}

func (t *transaction) ProcessRequestHeaders() error {
	t.inner.ProcessRequestHeaders()
	return nil
}

func (t *transaction) AppendRequestBody(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	_, _, err := t.inner.WriteRequestBody(body)
	return err
}

func (t *transaction) ProcessRequestBody() error {
	_, err := t.inner.ProcessRequestBody()
	return err
}

func (t *transaction) AddResponseHeader(key, value string) error {
	t.inner.AddResponseHeader(key, value)
	return nil
}

func (t *transaction) ProcessResponseHeaders(status int, proto string) error {
	t.inner.ProcessResponseHeaders(status, proto)
	return nil
}

func (t *transaction) AppendResponseBody(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	_, _, err := t.inner.WriteResponseBody(body)
	return err
}

func (t *transaction) ProcessResponseBody() error {
	_, err := t.inner.ProcessResponseBody()
	return err
}

func (t *transaction) Intervention() *engine.Verdict {
	interruption := t.inner.Interruption()
	if interruption == nil {
		return nil
	}
	verdict := &engine.Verdict{Disruptive: true, Status: interruption.Status}
	if interruption.Action == "redirect" {
		verdict.URL = interruption.Data
	}
	return verdict
}

// Close flushes the audit log phase and releases the transaction.
func (t *transaction) Close() error {
	t.inner.ProcessLogging()
	return t.inner.Close()
}

var _ engine.Engine = (*Engine)(nil)
