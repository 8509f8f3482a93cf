// ABOUTME: Tests for the SSE decoder
// ABOUTME: Covers multi-line data, comments, ids without data, and truncated messages

package trace

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, body string) []message {
	t.Helper()
	dec := newDecoder(strings.NewReader(body))
	var out []message
	for {
		msg, err := dec.next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}

func TestDecoder_Messages(t *testing.T) {
	body := ": keep-alive\n\n" +
		"id: 1\nevent: SPECS_DRAFT_UPDATED\ndata: {\"a\":1}\n\n" +
		"data: line one\ndata: line two\n\n" +
		"id: 9\n\n" +
		"data:no-space\n\n"

	msgs := readAll(t, body)
	require.Len(t, msgs, 4)

	assert.Equal(t, message{Event: "SPECS_DRAFT_UPDATED", Data: `{"a":1}`, ID: "1", HasID: true}, msgs[0])
	assert.Equal(t, "line one\nline two", msgs[1].Data)
	assert.False(t, msgs[1].HasID)
	assert.Equal(t, message{ID: "9", HasID: true}, msgs[2])
	assert.Equal(t, "no-space", msgs[3].Data)
}

func TestDecoder_DiscardsTrailingPartialMessage(t *testing.T) {
	msgs := readAll(t, "data: complete\n\ndata: partial\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, "complete", msgs[0].Data)
}

func TestDecoder_IgnoresRetryAndUnknownFields(t *testing.T) {
	msgs := readAll(t, "retry: 10\nfoo: bar\ndata: x\n\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, "x", msgs[0].Data)
}

func TestSplitField(t *testing.T) {
	tests := []struct {
		line  string
		field string
		value string
	}{
		{"data: x", "data", "x"},
		{"data:x", "data", "x"},
		{"data:  x", "data", " x"},
		{"data", "data", ""},
		{"data: a:b", "data", "a:b"},
	}
	for _, tt := range tests {
		field, value := splitField(tt.line)
		assert.Equal(t, tt.field, field, tt.line)
		assert.Equal(t, tt.value, value, tt.line)
	}
}
