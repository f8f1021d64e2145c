// Package engine defines the contract with the rule-matching engine. The
// engine itself is an external capability; everything in this package is an
// interface so a scripted double can stand in for it in tests.
package engine

// Verdict is the engine's judgement on a transaction at some inspection
// phase. A nil *Verdict means the engine has nothing to say.
//
// When Disruptive is false, Status and URL carry no meaning. When URL is
// set, a redirect takes precedence over a status-code response.
type Verdict struct {
	Disruptive bool
	Status     int
	URL        string
	Log        string
}

// LogSink receives engine-internal log records. A sink must never panic
// outward; logging failures must not affect inspection outcomes.
type LogSink func(message string)

// RuleSet accumulates compiled rules. It is mutated only during startup
// loading and must be safe for concurrent reads afterwards.
//
// Both load operations return the number of rules the source contributed.
// A failed source contributes zero and returns the parser error.
type RuleSet interface {
	AddFile(path string) (int, error)
	AddInline(text string) (int, error)
}

// Engine is the rule-matching capability. One Engine is created per process
// and shared, read-mostly, across all concurrent transactions.
type Engine interface {
	NewRuleSet() RuleSet
	NewTransaction(rules RuleSet) (Transaction, error)
}

// Transaction is the per-request inspection context. A transaction is never
// shared across requests; all calls happen sequentially from the single
// execution context handling its request. Close releases engine-side
// resources and must always run, even on early return.
type Transaction interface {
	ProcessConnection(clientAddr string, clientPort int, serverName string, serverPort int) error
	ProcessURI(uri, method, proto string) error
	AddRequestHeader(key, value string) error
	ProcessRequestHeaders() error
	AppendRequestBody(body []byte) error
	ProcessRequestBody() error
	AddResponseHeader(key, value string) error
	ProcessResponseHeaders(status int, proto string) error
	AppendResponseBody(body []byte) error
	ProcessResponseBody() error

	// Intervention returns the engine's verdict as of the latest completed
	// phase, or nil when the engine has nothing to say.
	Intervention() *Verdict

	Close() error
}
