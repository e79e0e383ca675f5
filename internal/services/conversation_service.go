package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundamentallm-backend/internal/events"
	"fundamentallm-backend/internal/history"
	"fundamentallm-backend/internal/llm"
	"fundamentallm-backend/internal/metrics"
	"fundamentallm-backend/internal/models"
	"fundamentallm-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PlaceholderTitle is used when a title could not be generated.
const PlaceholderTitle = "New Chat"

// ErrMessagesRequired is returned by ImportConversation when no history was supplied.
var ErrMessagesRequired = fmt.Errorf("%w: messages are required", history.ErrHistoryCorrupt)

// AskResult is the outcome of sending a user message.
// NoContent is set when the message was blank and nothing happened.
type AskResult struct {
	NoContent      bool
	ConversationID uuid.UUID
	ReplyText      string
	Usage          *llm.Usage
}

// CreateAndAskResult carries the new conversation and the first reply.
type CreateAndAskResult struct {
	AskResult
	Conversation *models.Conversation
}

// ConversationService runs the conversation lifecycle: creation, exchanges
// with the model, and import/export of message history.
type ConversationService struct {
	store   store.Store
	llm     llm.Capability
	events  events.Publisher
	metrics *metrics.Metrics
	locks   *conversationLocks
	now     func() time.Time
}

// NewConversationService creates a new ConversationService. pub and m may be nil.
func NewConversationService(st store.Store, capability llm.Capability, pub events.Publisher, m *metrics.Metrics) *ConversationService {
	if pub == nil {
		pub = events.Noop{}
	}
	return &ConversationService{
		store:   st,
		llm:     capability,
		events:  pub,
		metrics: m,
		locks:   newConversationLocks(),
		now:     time.Now,
	}
}

// StartConversation creates an empty conversation. A blank title is stored as no title.
func (s *ConversationService) StartConversation(ctx context.Context, title *string) (*models.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		ID:        uuid.New(),
		Title:     normalizeTitle(title),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation in store: %w", err)
	}

	s.metrics.ConversationCreated(ctx, false)
	s.emit(ctx, events.SubjectCreated, conv, 0)
	log.Info().Str("conversation_id", conv.ID.String()).Msg("[ConversationService] conversation started")
	return conv, nil
}

// CreateAndAsk creates a conversation titled after text and asks text in it.
// If the ask fails the conversation is kept and returned alongside the error.
func (s *ConversationService) CreateAndAsk(ctx context.Context, text string) (*CreateAndAskResult, error) {
	if strings.TrimSpace(text) == "" {
		s.metrics.TurnSkipped(ctx)
		return &CreateAndAskResult{AskResult: AskResult{NoContent: true}}, nil
	}

	title := s.summarizeTitle(ctx, text)
	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		ID:        uuid.New(),
		Title:     &title,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation in store: %w", err)
	}
	s.metrics.ConversationCreated(ctx, true)
	s.emit(ctx, events.SubjectCreated, conv, 0)

	res := &CreateAndAskResult{Conversation: conv}
	ask, err := s.Ask(ctx, conv.ID, text)
	if err != nil {
		return res, err
	}
	res.AskResult = *ask
	return res, nil
}

func (s *ConversationService) summarizeTitle(ctx context.Context, text string) string {
	start := time.Now()
	title, err := s.llm.SummarizeTitle(ctx, text)
	s.metrics.LLMCall(ctx, "title", time.Since(start), err)
	if err != nil {
		log.Warn().Err(err).Msg("[ConversationService] title generation failed, using placeholder")
		return PlaceholderTitle
	}
	if t := normalizeTitle(&title); t != nil {
		return *t
	}
	return PlaceholderTitle
}

// Ask sends text to the model within conversation id and persists the
// exchange. The reply is returned only once it has been saved. Concurrent
// asks on the same conversation run one at a time.
func (s *ConversationService) Ask(ctx context.Context, id uuid.UUID, text string) (*AskResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.TurnSkipped(ctx)
		return &AskResult{NoContent: true, ConversationID: id}, nil
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("waiting for conversation %s: %w", id, err)
	}
	defer unlock()

	conv, err := s.store.GetConversationByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation from store: %w", err)
	}

	prior, err := history.Decode(conv.Messages)
	if err != nil {
		s.metrics.TurnFailed(ctx, "decode")
		log.Error().Err(err).Str("conversation_id", id.String()).Msg("[ConversationService] stored history is unreadable")
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}

	start := time.Now()
	reply, err := s.llm.Converse(ctx, prior, text)
	s.metrics.LLMCall(ctx, "converse", time.Since(start), err)
	if err != nil {
		s.metrics.TurnFailed(ctx, "llm")
		if !errors.Is(err, llm.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", llm.ErrUnavailable, err)
		}
		return nil, err
	}

	newTurns, err := appendedTurns(prior, reply.Turns)
	if err != nil {
		s.metrics.TurnFailed(ctx, "llm")
		return nil, fmt.Errorf("%w: unusable response: %v", llm.ErrUnavailable, err)
	}

	encoded, err := history.Encode(reply.Turns)
	if err == nil {
		err = history.Validate(encoded)
	}
	if err != nil {
		s.metrics.TurnFailed(ctx, "llm")
		return nil, fmt.Errorf("%w: unusable response: %v", llm.ErrUnavailable, err)
	}

	conv.Messages = encoded
	conv.UpdatedAt = s.now().UTC()
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		s.metrics.TurnFailed(ctx, "save")
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	res := &AskResult{ConversationID: id, ReplyText: reply.Text, Usage: reply.Usage}
	if res.ReplyText == "" {
		res.ReplyText = history.ReplyText(newTurns)
	}
	totalTokens := 0
	if reply.Usage != nil {
		totalTokens = reply.Usage.TotalTokens
	}
	s.metrics.TurnCompleted(ctx, totalTokens)
	s.emit(ctx, events.SubjectUpdated, conv, len(reply.Turns))
	return res, nil
}

// appendedTurns checks that full extends prior with a user turn followed by
// one or more assistant turns, and returns the extension.
func appendedTurns(prior, full []history.Turn) ([]history.Turn, error) {
	if len(full) < len(prior)+2 {
		return nil, fmt.Errorf("expected at least %d turns, got %d", len(prior)+2, len(full))
	}
	if !history.IsPrefix(prior, full) {
		return nil, errors.New("prior history was modified")
	}
	added := full[len(prior):]
	if added[0].Role != history.RoleUser {
		return nil, fmt.Errorf("first new turn has role %q", added[0].Role)
	}
	for i, t := range added[1:] {
		if t.Role != history.RoleAssistant {
			return nil, fmt.Errorf("new turn %d has role %q", i+1, t.Role)
		}
	}
	return added, nil
}

// GetConversation returns conversation metadata.
func (s *ConversationService) GetConversation(ctx context.Context, id uuid.UUID) (*models.ConversationResponse, error) {
	conv, turns, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ConversationResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		TurnCount:      len(turns),
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}, nil
}

// ExportConversation returns a snapshot that ImportConversation accepts.
func (s *ConversationService) ExportConversation(ctx context.Context, id uuid.UUID) (*models.ExportResponse, error) {
	conv, turns, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ExportResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Messages:       turns,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}, nil
}

func (s *ConversationService) load(ctx context.Context, id uuid.UUID) (*models.Conversation, []history.Turn, error) {
	conv, err := s.store.GetConversationByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to get conversation from store: %w", err)
	}
	turns, err := history.Decode(conv.Messages)
	if err != nil {
		return nil, nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, turns, nil
}

// ImportConversation replaces the history, and the title whenever title is
// non-nil, including an empty one.
// messages is fully validated before storage is touched; a rejected import
// leaves the conversation unchanged.
func (s *ConversationService) ImportConversation(ctx context.Context, id uuid.UUID, title *string, messages json.RawMessage) (*models.Conversation, error) {
	trimmed := bytes.TrimSpace(messages)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		s.metrics.Import(ctx, "rejected")
		return nil, ErrMessagesRequired
	}
	turns, err := history.Decode(trimmed)
	if err != nil {
		s.metrics.Import(ctx, "rejected")
		return nil, err
	}
	encoded, err := history.Encode(turns)
	if err != nil {
		s.metrics.Import(ctx, "rejected")
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("waiting for conversation %s: %w", id, err)
	}
	defer unlock()

	conv, err := s.store.GetConversationByID(ctx, id)
	if err != nil {
		s.metrics.Import(ctx, "failed")
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation from store: %w", err)
	}

	if title != nil {
		t := *title
		conv.Title = &t
	}
	conv.Messages = encoded
	conv.UpdatedAt = s.now().UTC()
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		s.metrics.Import(ctx, "failed")
		return nil, fmt.Errorf("failed to save imported conversation: %w", err)
	}

	s.metrics.Import(ctx, "ok")
	s.emit(ctx, events.SubjectImported, conv, len(turns))
	log.Info().
		Str("conversation_id", id.String()).
		Int("turns", len(turns)).
		Msg("[ConversationService] history imported")
	return conv, nil
}

func (s *ConversationService) emit(ctx context.Context, subject string, conv *models.Conversation, turnCount int) {
	events.Emit(ctx, s.events, subject, events.ConversationEvent{
		ConversationID: conv.ID,
		Title:          conv.Title,
		TurnCount:      turnCount,
		At:             s.now().UTC(),
	})
}

func normalizeTitle(title *string) *string {
	if title == nil {
		return nil
	}
	t := strings.TrimSpace(*title)
	if t == "" {
		return nil
	}
	return &t
}
