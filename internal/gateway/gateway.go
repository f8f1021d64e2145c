// Package gateway wraps an http.Handler with the phased inspection gate:
// request phases, handler, response phases, with interventions replacing
// the handler's output.
package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wafgate/wafgate/internal/config"
	"github.com/wafgate/wafgate/internal/engine"
	"github.com/wafgate/wafgate/internal/inspect"
	"github.com/wafgate/wafgate/internal/logging"
	"github.com/wafgate/wafgate/internal/observability"
	"github.com/wafgate/wafgate/internal/ratelimit"
	"github.com/wafgate/wafgate/internal/rulestore"
)

type Gateway struct {
	eng        engine.Engine
	store      *rulestore.Store
	next       http.Handler
	serverName string

	log  zerolog.Logger
	sink engine.LogSink

	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
	limiter     *ratelimit.Limiter
	rl          config.RateLimitConfig
}

func New(eng engine.Engine, store *rulestore.Store, next http.Handler, log zerolog.Logger) (*Gateway, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if store == nil {
		return nil, errors.New("rule store is required")
	}
	if next == nil {
		return nil, errors.New("wrapped handler is required")
	}

	return &Gateway{
		eng:     eng,
		store:   store,
		next:    next,
		log:     log,
		sink:    logging.EngineSink(log),
		limiter: ratelimit.NewLimiter(),
	}, nil
}

// SetServerName overrides the server name submitted at the connection
// phase. By default the request's Host is used.
func (g *Gateway) SetServerName(name string) {
	g.serverName = name
}

func (g *Gateway) SetDecisionLogger(logger *logging.DecisionLogger) {
	g.decisionLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

func (g *Gateway) SetRateLimit(cfg config.RateLimitConfig) {
	g.rl = cfg
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	decision := logging.Decision{
		Timestamp: start.UTC(),
		RequestID: uuid.NewString(),
		ClientIP:  clientIP(r),
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.Path,
	}

	if g.rl.Enabled {
		key := ratelimitKey(g.rl.Key, decision.ClientIP, r.URL.Path)
		if !g.limiter.Allow(key, g.rl.RPS, g.rl.Burst, time.Now()) {
			decision.RateLimited = true
			decision.Action = logging.ActionBlock
			decision.StatusCode = rateLimitStatus(g.rl.StatusCode)
			g.finish(decision, start)
			http.Error(w, "rate limit exceeded", decision.StatusCode)
			return
		}
	}

	body, err := readBody(r)
	if err != nil {
		g.fail(w, decision, start, fmt.Errorf("read request body: %w", err))
		return
	}

	tx, err := g.eng.NewTransaction(g.store.Rules())
	if err != nil {
		g.fail(w, decision, start, fmt.Errorf("new transaction: %w", err))
		return
	}
	// The transaction owns engine-side resources; release them on every
	// path out of this handler.
	defer func() {
		if err := tx.Close(); err != nil {
			g.log.Debug().Err(err).Str("request_id", decision.RequestID).Msg("transaction close")
		}
	}()

	pipeline := inspect.New(tx, g.sink)

	outcome, err := pipeline.InspectRequest(g.buildRequest(r, body))
	if err != nil {
		g.fail(w, decision, start, err)
		return
	}
	if outcome != nil {
		g.intervene(w, r, decision, start, outcome)
		return
	}

	rec := newRecorder()
	g.next.ServeHTTP(rec, r)

	outcome, err = pipeline.InspectResponse(rec.response())
	if err != nil {
		g.fail(w, decision, start, err)
		return
	}
	if outcome != nil {
		g.intervene(w, r, decision, start, outcome)
		return
	}

	decision.Action = logging.ActionPass
	decision.StatusCode = rec.status
	g.finish(decision, start)
	if err := rec.flush(w); err != nil {
		g.log.Debug().Err(err).Str("request_id", decision.RequestID).Msg("write response")
	}
}

// intervene answers the request with the verdict-driven outcome instead of
// the handler's output.
func (g *Gateway) intervene(w http.ResponseWriter, r *http.Request, decision logging.Decision, start time.Time, outcome *inspect.Outcome) {
	decision.Phase = outcome.Phase.String()
	decision.StatusCode = outcome.Status
	decision.RuleLog = outcome.Log

	switch outcome.Kind {
	case inspect.OutcomeRedirect:
		decision.Action = logging.ActionRedirect
		g.finish(decision, start)
		if g.metrics != nil {
			g.metrics.ObserveIntervention(decision.Phase, string(outcome.Kind))
		}
		http.Redirect(w, r, outcome.URL, outcome.Status)
	default:
		decision.Action = logging.ActionBlock
		g.finish(decision, start)
		if g.metrics != nil {
			g.metrics.ObserveIntervention(decision.Phase, string(outcome.Kind))
		}
		w.WriteHeader(outcome.Status)
	}
}

// fail answers with a generic server error. Inspection state is undefined
// after a failed engine call, so the request must not pass through.
func (g *Gateway) fail(w http.ResponseWriter, decision logging.Decision, start time.Time, err error) {
	g.log.Error().Err(err).Str("request_id", decision.RequestID).Msg("inspection failed")
	decision.Action = logging.ActionError
	decision.StatusCode = http.StatusInternalServerError
	g.finish(decision, start)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (g *Gateway) finish(decision logging.Decision, start time.Time) {
	decision.DurationMS = time.Since(start).Milliseconds()
	if g.decisionLog != nil {
		if err := g.decisionLog.Write(decision); err != nil {
			g.log.Debug().Err(err).Msg("decision log write")
		}
	}
	if g.metrics != nil {
		g.metrics.ObserveRequest(decision.Action, decision.StatusCode, time.Duration(decision.DurationMS)*time.Millisecond)
	}
}

func (g *Gateway) buildRequest(r *http.Request, body []byte) *inspect.Request {
	clientAddr, clientPort := splitAddr(r.RemoteAddr)
	serverName := g.serverName
	if serverName == "" {
		serverName = stripPort(r.Host)
	}

	return &inspect.Request{
		ClientAddr: clientAddr,
		ClientPort: clientPort,
		ServerName: serverName,
		ServerPort: serverPort(r),
		URI:        r.URL.RequestURI(),
		Method:     r.Method,
		Proto:      "1.1",
		Host:       r.Host,
		Headers:    r.Header,
		Body:       body,
	}
}

// readBody drains the request body in full and restores it so the wrapped
// handler still sees it. The engine receives the body as one chunk.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	return body, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func splitAddr(addr string) (string, int) {
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return host, 0
	}
	return host, port
}

func serverPort(r *http.Request) int {
	if _, portText, err := net.SplitHostPort(r.Host); err == nil {
		if port, err := strconv.Atoi(portText); err == nil {
			return port
		}
	}
	if r.TLS != nil {
		return 443
	}
	return 80
}

func stripPort(hostport string) string {
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func ratelimitKey(mode string, ip string, path string) string {
	switch mode {
	case string(ratelimit.KeyIPPath):
		return ip + "|" + path
	case string(ratelimit.KeyIP):
		fallthrough
	default:
		return ip
	}
}

func rateLimitStatus(code int) int {
	if code <= 0 {
		return http.StatusTooManyRequests
	}
	return code
}
