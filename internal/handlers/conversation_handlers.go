package handlers

import (
	"context"
	"errors"
	"net/http"

	"fundamentallm-backend/internal/history"
	"fundamentallm-backend/internal/llm"
	"fundamentallm-backend/internal/models"
	"fundamentallm-backend/internal/services"
	"fundamentallm-backend/internal/store"
	"fundamentallm-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ConversationHandlers handles HTTP requests related to conversations.
type ConversationHandlers struct {
	service *services.ConversationService
}

// NewConversationHandlers creates a new ConversationHandlers instance.
func NewConversationHandlers(service *services.ConversationService) *ConversationHandlers {
	return &ConversationHandlers{service: service}
}

// HandleCreateConversation creates a conversation. With a text field the
// first question is asked right away and the conversation is titled after it.
func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req models.StartConversationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Text == nil {
		conv, err := h.service.StartConversation(r.Context(), req.Title)
		if err != nil {
			respondServiceError(w, r, err, "Failed to create conversation")
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, models.StartConversationResponse{
			ConversationID: conv.ID,
			Title:          conv.Title,
		})
		return
	}

	res, err := h.service.CreateAndAsk(r.Context(), *req.Text)
	if err != nil {
		if res != nil && res.Conversation != nil {
			log.Warn().Err(err).
				Str("conversation_id", res.Conversation.ID.String()).
				Msg("[ConversationHandlers] conversation created but first question failed")
		}
		respondServiceError(w, r, err, "Failed to create conversation")
		return
	}
	if res.NoContent {
		httputil.RespondNoContent(w)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, models.StartConversationResponse{
		ConversationID:   res.Conversation.ID,
		Title:            res.Conversation.Title,
		ReplyText:        &res.ReplyText,
		UsageTotalTokens: totalTokens(res.Usage),
	})
}

// HandleGetConversation returns conversation metadata.
func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.GetConversation(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to get conversation")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conv)
}

// HandleSendMessage asks the model a question within a conversation.
func (h *ConversationHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConversationID(w, r)
	if !ok {
		return
	}

	var req models.ChatMessageRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.Ask(r.Context(), id, req.Text)
	if err != nil {
		respondServiceError(w, r, err, "Failed to send message")
		return
	}
	if res.NoContent {
		httputil.RespondNoContent(w)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, models.ChatMessageResponse{
		ConversationID:   id,
		ReplyText:        res.ReplyText,
		UsageTotalTokens: totalTokens(res.Usage),
	})
}

// HandleExportConversation returns the conversation with its full history.
func (h *ConversationHandlers) HandleExportConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConversationID(w, r)
	if !ok {
		return
	}

	export, err := h.service.ExportConversation(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to export conversation")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, export)
}

// HandleImportConversation replaces a conversation's history. Every outcome
// is reported with the ImportResponse shape.
func (h *ConversationHandlers) HandleImportConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseConversationID(w, r)
	if !ok {
		return
	}

	var req models.ImportRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondJSON(w, http.StatusBadRequest, models.ImportResponse{OK: false, Error: "Invalid request body"})
		return
	}

	conv, err := h.service.ImportConversation(r.Context(), id, req.Title, req.Messages)
	switch {
	case err == nil:
		httputil.RespondJSON(w, http.StatusOK, models.ImportResponse{OK: true, Title: conv.Title})
	case errors.Is(err, history.ErrHistoryCorrupt):
		httputil.RespondJSON(w, http.StatusBadRequest, models.ImportResponse{OK: false, Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondJSON(w, http.StatusNotFound, models.ImportResponse{OK: false, Error: "Conversation not found"})
	default:
		logRequestError(r, err, "import failed")
		httputil.RespondJSON(w, http.StatusInternalServerError, models.ImportResponse{OK: false, Error: "Failed to import conversation"})
	}
}

func parseConversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return uuid.Nil, false
	}
	return id, true
}

// respondServiceError maps service errors onto status codes.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, context.DeadlineExceeded):
		httputil.RespondError(w, http.StatusGatewayTimeout, "Request timed out")
	case errors.Is(err, llm.ErrUnavailable):
		logRequestError(r, err, "language model unavailable")
		httputil.RespondError(w, http.StatusBadGateway, "Language model unavailable")
	case errors.Is(err, history.ErrHistoryCorrupt):
		logRequestError(r, err, "stored history is corrupt")
		httputil.RespondError(w, http.StatusInternalServerError, "Stored conversation history is corrupt")
	default:
		logRequestError(r, err, "request failed")
		httputil.RespondError(w, http.StatusInternalServerError, fallback)
	}
}

func logRequestError(r *http.Request, err error, msg string) {
	log.Error().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("[ConversationHandlers] " + msg)
}

func totalTokens(u *llm.Usage) *int {
	if u == nil {
		return nil
	}
	n := u.TotalTokens
	return &n
}
