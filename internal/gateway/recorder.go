package gateway

import (
	"bytes"
	"net/http"

	"github.com/wafgate/wafgate/internal/inspect"
)

// recorder buffers the wrapped handler's response so the response-side
// phases can inspect it before anything reaches the client. On
// pass-through the buffered response is replayed unchanged.
type recorder struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}

func (r *recorder) response() *inspect.Response {
	return &inspect.Response{
		Status:  r.status,
		Proto:   "HTTP/1.1",
		Headers: r.header,
		Body:    r.body.Bytes(),
	}
}

func (r *recorder) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for key, values := range r.header {
		dst[key] = values
	}
	w.WriteHeader(r.status)
	if r.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(r.body.Bytes())
	return err
}
