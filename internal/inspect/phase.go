package inspect

// Phase is one discrete inspection stage. A transaction passes through all
// six phases strictly in this order, request side then response side.
type Phase int

const (
	PhaseConnection Phase = iota
	PhaseURI
	PhaseRequestHeaders
	PhaseRequestBody
	PhaseResponseHeaders
	PhaseResponseBody
)

func (p Phase) String() string {
	switch p {
	case PhaseConnection:
		return "connection"
	case PhaseURI:
		return "uri"
	case PhaseRequestHeaders:
		return "request_headers"
	case PhaseRequestBody:
		return "request_body"
	case PhaseResponseHeaders:
		return "response_headers"
	case PhaseResponseBody:
		return "response_body"
	default:
		return "unknown"
	}
}
