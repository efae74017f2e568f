package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFencedJSON(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`, true},
		{"upper case tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`, true},
		{"bare fence with object", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"skips non-json fence", "```go\nfmt.Println()\n```\n```json\n{\"b\":2}\n```", `{"b":2}`, true},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`, true},
		{"whole text object", "  {\"a\":1}  ", `{"a":1}`, true},
		{"no block", "nothing to see here", "", false},
		{"bare fence without object", "```\nplain\n```", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FencedJSON(tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeStrict(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, DecodeStrict(`{"a":3}`, &v))
	assert.Equal(t, 3, v.A)

	assert.Error(t, DecodeStrict(`{"a":3,"b":4}`, &v))
	assert.Error(t, DecodeStrict(`{"a":3}{"a":4}`, &v))
	assert.Error(t, DecodeStrict(`{"a":`, &v))
}
