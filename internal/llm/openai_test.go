package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fundamentallm-backend/internal/history"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	t        *testing.T
	content  string
	status   int
	requests []openai.ChatCompletionRequest
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "/v1/chat/completions", r.URL.Path)
	assert.Equal(f.t, "Bearer test-key", r.Header.Get("Authorization"))

	var req openai.ChatCompletionRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	f.requests = append(f.requests, req)

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": f.content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12},
	})
}

func newTestProvider(t *testing.T, f *fakeEndpoint) *OpenAIProvider {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(ProviderConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		ChatModel:  "chat-model",
		TitleModel: "title-model",
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(ProviderConfig{APIKey: "  "})
	assert.Error(t, err)
}

func TestConverseAppendsExchange(t *testing.T) {
	f := &fakeEndpoint{content: "<think>they said hi</think>\n\nHello back!"}
	p := newTestProvider(t, f)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prior := []history.Turn{
		{Role: history.RoleUser, Parts: []history.Part{
			{Kind: history.KindSystemPrompt, Content: "Be kind."},
			{Kind: history.KindUserPrompt, Content: "Hi"},
		}, Timestamp: at},
		history.NewAssistantTurn("chat-model", at,
			history.Part{Kind: history.KindThinking, Content: "hidden"},
			history.Part{Kind: history.KindText, Content: "Hey"},
		),
	}

	reply, err := p.Converse(context.Background(), prior, "How are you?")
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, "chat-model", req.Model)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Be kind.", req.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[2].Role)
	assert.Equal(t, "Hey", req.Messages[2].Content)
	assert.Equal(t, "How are you?", req.Messages[3].Content)

	require.Len(t, reply.Turns, 4)
	assert.True(t, history.IsPrefix(prior, reply.Turns))
	assert.Equal(t, history.RoleUser, reply.Turns[2].Role)
	assert.Equal(t, "How are you?", reply.Turns[2].Parts[0].Content)

	last := reply.Turns[3]
	assert.Equal(t, history.RoleAssistant, last.Role)
	assert.Equal(t, "chat-model", last.ModelName)
	assert.Equal(t, []history.Part{
		{Kind: history.KindThinking, Content: "they said hi"},
		{Kind: history.KindText, Content: "Hello back!"},
	}, last.Parts)
	assert.Equal(t, "Hello back!", reply.Text)
	require.NotNil(t, reply.Usage)
	assert.Equal(t, 12, reply.Usage.TotalTokens)

	_, err = history.Encode(reply.Turns)
	require.NoError(t, err)
}

func TestConverseUpstreamFailure(t *testing.T) {
	p := newTestProvider(t, &fakeEndpoint{status: http.StatusInternalServerError})

	_, err := p.Converse(context.Background(), nil, "Hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestConverseDeadlineKeepsCause(t *testing.T) {
	p := newTestProvider(t, &fakeEndpoint{content: "late"})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := p.Converse(ctx, nil, "Hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSummarizeTitle(t *testing.T) {
	f := &fakeEndpoint{content: "<think>short</think>\"Weekend Hiking Plans\"\n"}
	p := newTestProvider(t, f)

	title, err := p.SummarizeTitle(context.Background(), "Where should I hike this weekend?")
	require.NoError(t, err)
	assert.Equal(t, "Weekend Hiking Plans", title)

	require.Len(t, f.requests, 1)
	assert.Equal(t, "title-model", f.requests[0].Model)
	require.Len(t, f.requests[0].Messages, 2)
	assert.Equal(t, titleSystemPrompt, f.requests[0].Messages[0].Content)
}

func TestSummarizeTitleEmpty(t *testing.T) {
	p := newTestProvider(t, &fakeEndpoint{content: "   "})

	_, err := p.SummarizeTitle(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"Plain":                         "Plain",
		"Title: Rust lifetimes":         "Rust lifetimes",
		"'Quoted'\nsecond line":         "Quoted",
		"**Bold Title**":                "Bold Title",
		"<think>x</think>  Go Generics": "Go Generics",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanTitle(in), in)
	}

	long := cleanTitle(strings.Repeat("a", 300))
	assert.Equal(t, maxTitleRunes, len(long))
}
