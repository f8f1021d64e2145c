// Package enginetest provides a scripted engine double for tests. It records
// every call so tests can assert on phase ordering and short-circuiting
// without a real rule engine.
package enginetest

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/wafgate/wafgate/internal/engine"
)

// Result scripts the outcome of a single rule-source load.
type Result struct {
	Count int
	Err   error
}

// Fake implements engine.Engine. Zero value is usable: every file load
// reports one rule, inline loads report InlineResult, and no transaction
// ever yields a verdict.
type Fake struct {
	// FileResults scripts AddFile outcomes, keyed by base file name.
	// Unlisted files succeed with a count of one.
	FileResults map[string]Result
	// InlineResult scripts AddInline outcomes.
	InlineResult Result
	// Verdicts scripts Intervention results by 1-based check number.
	// The same script applies to every transaction.
	Verdicts map[int]*engine.Verdict
	// FailOn names a transaction method that returns an error when called.
	FailOn string
	// NewTxErr makes NewTransaction fail.
	NewTxErr error

	mu           sync.Mutex
	RuleSets     []*RuleSet
	Transactions []*Transaction
}

func (f *Fake) NewRuleSet() engine.RuleSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := &RuleSet{fake: f}
	f.RuleSets = append(f.RuleSets, rs)
	return rs
}

func (f *Fake) NewTransaction(rules engine.RuleSet) (engine.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewTxErr != nil {
		return nil, f.NewTxErr
	}
	tx := &Transaction{fake: f}
	f.Transactions = append(f.Transactions, tx)
	return tx, nil
}

// RuleSet records the sources loaded into it.
type RuleSet struct {
	fake *Fake

	Files   []string
	Inlines []string
}

func (rs *RuleSet) AddFile(path string) (int, error) {
	rs.Files = append(rs.Files, path)
	result, ok := rs.fake.FileResults[filepath.Base(path)]
	if !ok {
		result = Result{Count: 1}
	}
	return result.Count, result.Err
}

func (rs *RuleSet) AddInline(text string) (int, error) {
	rs.Inlines = append(rs.Inlines, text)
	result := rs.fake.InlineResult
	return result.Count, result.Err
}

// Transaction records method calls in order. Submission methods append
// their name to Calls; header and body submissions also append the payload.
type Transaction struct {
	fake *Fake

	Calls  []string
	Checks int
	Closed bool
}

func (t *Transaction) record(name, detail string) error {
	entry := name
	if detail != "" {
		entry = name + " " + detail
	}
	t.Calls = append(t.Calls, entry)
	if t.fake.FailOn == name {
		return fmt.Errorf("scripted %s failure", name)
	}
	return nil
}

func (t *Transaction) ProcessConnection(clientAddr string, clientPort int, serverName string, serverPort int) error {
	return t.record("ProcessConnection", fmt.Sprintf("%s:%d %s:%d", clientAddr, clientPort, serverName, serverPort))
}

func (t *Transaction) ProcessURI(uri, method, proto string) error {
	return t.record("ProcessURI", fmt.Sprintf("%s %s %s", method, uri, proto))
}

func (t *Transaction) AddRequestHeader(key, value string) error {
	return t.record("AddRequestHeader", key+"="+value)
}

func (t *Transaction) ProcessRequestHeaders() error {
	return t.record("ProcessRequestHeaders", "")
}

func (t *Transaction) AppendRequestBody(body []byte) error {
	return t.record("AppendRequestBody", string(body))
}

func (t *Transaction) ProcessRequestBody() error {
	return t.record("ProcessRequestBody", "")
}

func (t *Transaction) AddResponseHeader(key, value string) error {
	return t.record("AddResponseHeader", key+"="+value)
}

func (t *Transaction) ProcessResponseHeaders(status int, proto string) error {
	return t.record("ProcessResponseHeaders", fmt.Sprintf("%d %s", status, proto))
}

func (t *Transaction) AppendResponseBody(body []byte) error {
	return t.record("AppendResponseBody", string(body))
}

func (t *Transaction) ProcessResponseBody() error {
	return t.record("ProcessResponseBody", "")
}

func (t *Transaction) Intervention() *engine.Verdict {
	t.Checks++
	return t.fake.Verdicts[t.Checks]
}

func (t *Transaction) Close() error {
	t.Closed = true
	return nil
}

var _ engine.Engine = (*Fake)(nil)
