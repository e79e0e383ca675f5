package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fundamentallm-backend/internal/handlers"
	"fundamentallm-backend/internal/history"
	"fundamentallm-backend/internal/llm"
	"fundamentallm-backend/internal/services"
	"fundamentallm-backend/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLLM struct{}

func (fixedLLM) Converse(_ context.Context, prior []history.Turn, u string) (*llm.Reply, error) {
	at := time.Now().UTC()
	turns := append(append([]history.Turn{}, prior...),
		history.NewUserTurn(u, at),
		history.NewAssistantTurn("fixed", at, history.Part{Kind: history.KindText, Content: "ok"}),
	)
	return &llm.Reply{Turns: turns, Text: "ok"}, nil
}

func (fixedLLM) SummarizeTitle(context.Context, string) (string, error) { return "Title", nil }

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	st := memory.New()
	svc := services.NewConversationService(st, fixedLLM{}, nil, nil)
	return NewRouter(RouterDependencies{
		ConversationHandler: handlers.NewConversationHandlers(svc),
		HealthHandler:       handlers.NewHealthHandler(st, nil),
		AllowedOrigins:      []string{"http://localhost:5173"},
		RequestTimeout:      5 * time.Second,
	})
}

func TestRoutes(t *testing.T) {
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader(`{"text":"hi"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reply_text":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/nope/export", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/conversations", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/conversations", http.NoBody)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
