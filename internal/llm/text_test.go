package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, StripFences(fenced))

	plain := `{"a": 1}`
	assert.Equal(t, plain, StripFences(plain))

	bare := "```\nhello\n```"
	assert.Equal(t, "hello", StripFences(bare))
}

func TestExtractJSON(t *testing.T) {
	wrapped := `Here is the script you asked for: {"title": "Test"} hope it helps`
	assert.Equal(t, `{"title": "Test"}`, ExtractJSON(wrapped))

	nested := `preamble {"a": {"b": [1, 2]}} trailing`
	assert.Equal(t, `{"a": {"b": [1, 2]}}`, ExtractJSON(nested))

	none := "no json here"
	assert.Equal(t, none, ExtractJSON(none))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	long := Truncate("abcdefghij", 5)
	assert.LessOrEqual(t, len(long), 8)
	assert.Contains(t, long, "...")
}
