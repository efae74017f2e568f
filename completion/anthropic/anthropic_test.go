package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/completion"
)

func TestBuildMessages_AlternatesRoles(t *testing.T) {
	msgs := buildMessages([]completion.Message{
		{Role: completion.RoleAssistant, Content: "earlier"},
		{Role: completion.RoleUser, Content: "[B] one"},
		{Role: completion.RoleUser, Content: "[C] two"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
}

func TestBuildMessages_EmptyHistory(t *testing.T) {
	msgs := buildMessages(nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
}

func TestBackend_StreamsCumulativeSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hi", " there", "!"} {
			b, _ := json.Marshal(map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": d},
			})
			fmt.Fprintf(w, "event: content_block_delta\ndata: %s\n\n", b)
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"))
	b := NewBackendFromClient(&client)
	assert.Equal(t, completion.Cumulative, b.Delivery())

	chunks, errs := b.Generate(context.Background(), completion.Request{System: "You are A."})
	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"Hi", "Hi there", "Hi there!"}, got)
}
