// Package inspect runs the ordered inspection phases for one transaction
// and turns engine verdicts into HTTP outcomes.
package inspect

import (
	"fmt"
	"net/http"

	"github.com/wafgate/wafgate/internal/engine"
)

// Request carries the request-side data submitted to the engine.
type Request struct {
	ClientAddr string
	ClientPort int
	ServerName string
	ServerPort int

	URI     string
	Method  string
	Proto   string
	Host    string
	Headers http.Header
	Body    []byte
}

// Response carries the wrapped handler's buffered response for the
// response-side phases.
type Response struct {
	Status  int
	Proto   string
	Headers http.Header
	Body    []byte
}

// Pipeline drives one transaction through the six phases. After each
// phase's completion signal it queries the engine once; a disruptive
// verdict stops the pipeline immediately and no later phase runs.
type Pipeline struct {
	tx   engine.Transaction
	sink engine.LogSink
}

func New(tx engine.Transaction, sink engine.LogSink) *Pipeline {
	return &Pipeline{tx: tx, sink: sink}
}

// InspectRequest runs the request sub-pipeline. A non-nil outcome means the
// caller must answer with it and never invoke the wrapped handler. A non-nil
// error means an engine call itself failed; the request must be failed with
// a generic error rather than inspected further.
func (p *Pipeline) InspectRequest(req *Request) (*Outcome, error) {
	if err := p.tx.ProcessConnection(req.ClientAddr, req.ClientPort, req.ServerName, req.ServerPort); err != nil {
		return nil, phaseError(PhaseConnection, err)
	}
	if out := p.check(PhaseConnection); out != nil {
		return out, nil
	}

	if err := p.tx.ProcessURI(req.URI, req.Method, req.Proto); err != nil {
		return nil, phaseError(PhaseURI, err)
	}
	if out := p.check(PhaseURI); out != nil {
		return out, nil
	}

	if req.Host != "" {
		if err := p.tx.AddRequestHeader("Host", req.Host); err != nil {
			return nil, phaseError(PhaseRequestHeaders, err)
		}
	}
	for key, values := range req.Headers {
		for _, value := range values {
			if err := p.tx.AddRequestHeader(key, value); err != nil {
				return nil, phaseError(PhaseRequestHeaders, err)
			}
		}
	}
	if err := p.tx.ProcessRequestHeaders(); err != nil {
		return nil, phaseError(PhaseRequestHeaders, err)
	}
	if out := p.check(PhaseRequestHeaders); out != nil {
		return out, nil
	}

	if err := p.tx.AppendRequestBody(req.Body); err != nil {
		return nil, phaseError(PhaseRequestBody, err)
	}
	if err := p.tx.ProcessRequestBody(); err != nil {
		return nil, phaseError(PhaseRequestBody, err)
	}
	return p.check(PhaseRequestBody), nil
}

// InspectResponse runs the response sub-pipeline over the buffered
// response. The same outcome and error contract as InspectRequest applies.
func (p *Pipeline) InspectResponse(res *Response) (*Outcome, error) {
	for key, values := range res.Headers {
		for _, value := range values {
			if err := p.tx.AddResponseHeader(key, value); err != nil {
				return nil, phaseError(PhaseResponseHeaders, err)
			}
		}
	}
	if err := p.tx.ProcessResponseHeaders(res.Status, res.Proto); err != nil {
		return nil, phaseError(PhaseResponseHeaders, err)
	}
	if out := p.check(PhaseResponseHeaders); out != nil {
		return out, nil
	}

	if err := p.tx.AppendResponseBody(res.Body); err != nil {
		return nil, phaseError(PhaseResponseBody, err)
	}
	if err := p.tx.ProcessResponseBody(); err != nil {
		return nil, phaseError(PhaseResponseBody, err)
	}
	return p.check(PhaseResponseBody), nil
}

// check is the single intervention query shared by all six call sites.
func (p *Pipeline) check(phase Phase) *Outcome {
	return Translate(p.tx.Intervention(), phase, p.sink)
}

func phaseError(phase Phase, err error) error {
	return fmt.Errorf("%s phase: %w", phase, err)
}
