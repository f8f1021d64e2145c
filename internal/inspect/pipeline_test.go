package inspect

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafgate/wafgate/internal/engine"
	"github.com/wafgate/wafgate/internal/engine/enginetest"
)

func sampleRequest() *Request {
	return &Request{
		ClientAddr: "203.0.113.7",
		ClientPort: 54321,
		ServerName: "example.com",
		ServerPort: 80,
		URI:        "/search?q=test",
		Method:     http.MethodGet,
		Proto:      "1.1",
		Host:       "example.com",
		Headers:    http.Header{"User-Agent": []string{"test-agent"}},
		Body:       []byte("q=test"),
	}
}

func sampleResponse() *Response {
	return &Response{
		Status:  http.StatusOK,
		Proto:   "HTTP/1.1",
		Headers: http.Header{"Content-Type": []string{"text/plain"}},
		Body:    []byte("ok"),
	}
}

func newTx(t *testing.T, fake *enginetest.Fake) *enginetest.Transaction {
	t.Helper()
	tx, err := fake.NewTransaction(fake.NewRuleSet())
	require.NoError(t, err)
	return tx.(*enginetest.Transaction)
}

func TestPipelinePhaseOrder(t *testing.T) {
	fake := &enginetest.Fake{}
	tx := newTx(t, fake)
	p := New(tx, nil)

	out, err := p.InspectRequest(sampleRequest())
	require.NoError(t, err)
	require.Nil(t, out)

	out, err = p.InspectResponse(sampleResponse())
	require.NoError(t, err)
	require.Nil(t, out)

	assert.Equal(t, []string{
		"ProcessConnection 203.0.113.7:54321 example.com:80",
		"ProcessURI GET /search?q=test 1.1",
		"AddRequestHeader Host=example.com",
		"AddRequestHeader User-Agent=test-agent",
		"ProcessRequestHeaders",
		"AppendRequestBody q=test",
		"ProcessRequestBody",
		"AddResponseHeader Content-Type=text/plain",
		"ProcessResponseHeaders 200 HTTP/1.1",
		"AppendResponseBody ok",
		"ProcessResponseBody",
	}, tx.Calls)
	assert.Equal(t, 6, tx.Checks, "one intervention check per phase")
}

func TestPipelineRedirectShortCircuits(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			2: {Disruptive: true, URL: "https://blocked.example.com/denied"},
		},
	}
	tx := newTx(t, fake)
	p := New(tx, nil)

	out, err := p.InspectRequest(sampleRequest())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeRedirect, out.Kind)
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, "https://blocked.example.com/denied", out.URL)
	assert.Equal(t, PhaseURI, out.Phase)

	// Nothing past the URI phase may reach the engine.
	assert.Equal(t, "ProcessURI GET /search?q=test 1.1", tx.Calls[len(tx.Calls)-1])
	assert.Equal(t, 2, tx.Checks)
}

func TestPipelineBlockOnRequestBody(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			4: {Disruptive: true, Status: http.StatusForbidden},
		},
	}
	tx := newTx(t, fake)
	p := New(tx, nil)

	out, err := p.InspectRequest(sampleRequest())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeStatus, out.Kind)
	assert.Equal(t, http.StatusForbidden, out.Status)
	assert.Equal(t, PhaseRequestBody, out.Phase)
	assert.Equal(t, 4, tx.Checks)
}

func TestPipelineLogOnlyVerdictContinues(t *testing.T) {
	var sunk []string
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			1: {Disruptive: false, Log: "rule 900100 matched"},
		},
	}
	tx := newTx(t, fake)
	p := New(tx, func(msg string) { sunk = append(sunk, msg) })

	out, err := p.InspectRequest(sampleRequest())
	require.NoError(t, err)
	assert.Nil(t, out, "informational verdict must not short-circuit")
	assert.Equal(t, []string{"rule 900100 matched"}, sunk)
	assert.Equal(t, 4, tx.Checks, "all request phases ran")
}

func TestPipelineEngineCallFailure(t *testing.T) {
	fake := &enginetest.Fake{FailOn: "ProcessRequestHeaders"}
	tx := newTx(t, fake)
	p := New(tx, nil)

	out, err := p.InspectRequest(sampleRequest())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "request_headers phase")
}

func TestPipelineResponseBodyBlock(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			6: {Disruptive: true, Status: http.StatusNotAcceptable},
		},
	}
	tx := newTx(t, fake)
	p := New(tx, nil)

	out, err := p.InspectRequest(sampleRequest())
	require.NoError(t, err)
	require.Nil(t, out)

	out, err = p.InspectResponse(sampleResponse())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, http.StatusNotAcceptable, out.Status)
	assert.Equal(t, PhaseResponseBody, out.Phase)
}

func TestPipelineIdempotentAcrossTransactions(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			3: {Disruptive: true, Status: http.StatusForbidden},
		},
	}

	for i := 0; i < 2; i++ {
		tx := newTx(t, fake)
		out, err := New(tx, nil).InspectRequest(sampleRequest())
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, http.StatusForbidden, out.Status)
		assert.Equal(t, PhaseRequestHeaders, out.Phase)
	}
	assert.Len(t, fake.Transactions, 2, "each run gets its own transaction")
}
