package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEngineSinkForwards(t *testing.T) {
	var buf bytes.Buffer
	sink := EngineSink(zerolog.New(&buf))

	sink("rule 942100 matched")

	if !strings.Contains(buf.String(), "rule 942100 matched") {
		t.Fatalf("expected engine message in log, got %q", buf.String())
	}
}

func TestEngineSinkNeverPanics(t *testing.T) {
	sink := EngineSink(zerolog.New(panicWriter{}))

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("sink must not panic, got %v", r)
		}
	}()
	sink("message")
}

type panicWriter struct{}

func (panicWriter) Write([]byte) (int, error) {
	panic("writer failure")
}
