package log

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "trace",
		"debug":   "debug",
		"info":    "info",
		"warn":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		" junk ":  "info",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in).String(), "parseLevel(%q)", in)
	}
}

func TestInitWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Writer: &buf, Component: "test"})
	require.NotNil(t, root.Load())

	Info("ics fetch success", "id", "work", "status", 200, "took", 2*time.Second)
	Error("render failed", errors.New("boom"), "date", "2025-03-09")
	Debug("odd pairs are ignored", "dangling")

	out := buf.String()
	assert.Contains(t, out, `"message":"ics fetch success"`)
	assert.Contains(t, out, `"id":"work"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"date":"2025-03-09"`)
	assert.NotContains(t, out, "dangling")

	buf.Reset()
	SetLevel(LevelError)
	Info("suppressed")
	assert.Empty(t, buf.String())
	SetLevel(LevelDebug)
}
