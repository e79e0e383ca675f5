package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"fundamentallm-backend/internal/history"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.deepinfra.com/v1/openai"
	DefaultModel   = "Qwen/Qwen3-235B-A22B"

	titleSystemPrompt = "The following is the first message of a conversation. " +
		"Reply with only a title for the conversation that is succinct and descriptive, " +
		"capturing the topic of the conversation. "

	maxTitleRunes = 100
)

var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>(.*?)</think>`)

// ProviderConfig configures an OpenAI-compatible chat completion endpoint.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	TitleModel string
	Timeout    time.Duration
}

// OpenAIProvider implements Capability against any OpenAI-compatible API.
// The default base URL points at DeepInfra.
type OpenAIProvider struct {
	client     *openai.Client
	chatModel  string
	titleModel string
	now        func() time.Time
}

var _ Capability = (*OpenAIProvider)(nil)

// NewOpenAIProvider fails when no API key is configured.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("no API key configured for the language model provider (set DEEPINFRA_API_KEY)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultModel
	}
	if cfg.TitleModel == "" {
		cfg.TitleModel = cfg.ChatModel
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(config),
		chatModel:  cfg.ChatModel,
		titleModel: cfg.TitleModel,
		now:        time.Now,
	}, nil
}

// Converse sends the prior history plus utterance and records the answer as
// an assistant turn. A leading <think> block becomes a thinking part.
func (p *OpenAIProvider) Converse(ctx context.Context, prior []history.Turn, utterance string) (*Reply, error) {
	msgs := toChatMessages(prior)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance})
	askedAt := p.now().UTC()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: msgs,
	})
	if err != nil {
		return nil, unavailable("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(ErrUnavailable, "chat completion returned no choices")
	}

	model := resp.Model
	if model == "" {
		model = p.chatModel
	}
	thinking, text := splitThinking(resp.Choices[0].Message.Content)
	var parts []history.Part
	if thinking != "" {
		parts = append(parts, history.Part{Kind: history.KindThinking, Content: thinking})
	}
	parts = append(parts, history.Part{Kind: history.KindText, Content: text})

	turns := make([]history.Turn, 0, len(prior)+2)
	turns = append(turns, prior...)
	turns = append(turns,
		history.NewUserTurn(utterance, askedAt),
		history.NewAssistantTurn(model, p.now().UTC(), parts...),
	)

	reply := &Reply{Turns: turns, Text: text}
	if resp.Usage.TotalTokens > 0 {
		reply.Usage = &Usage{TotalTokens: resp.Usage.TotalTokens}
	}
	log.Debug().
		Str("model", model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("[OpenAIProvider] chat completion finished")
	return reply, nil
}

// SummarizeTitle asks the title model for a short title.
func (p *OpenAIProvider) SummarizeTitle(ctx context.Context, utterance string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.titleModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: utterance},
		},
	})
	if err != nil {
		return "", unavailable("title completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(ErrUnavailable, "title completion returned no choices")
	}

	title := cleanTitle(resp.Choices[0].Message.Content)
	if title == "" {
		return "", errors.Wrap(ErrUnavailable, "title completion returned an empty title")
	}
	return title, nil
}

// unavailable marks err as ErrUnavailable and keeps err in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func toChatMessages(turns []history.Turn) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	for _, t := range turns {
		switch t.Role {
		case history.RoleUser:
			for _, part := range t.Parts {
				role := openai.ChatMessageRoleUser
				if part.Kind == history.KindSystemPrompt {
					role = openai.ChatMessageRoleSystem
				}
				msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: part.Content})
			}
		case history.RoleAssistant:
			// thinking parts are not sent back to the model
			text := history.ReplyText([]history.Turn{t})
			if text == "" {
				continue
			}
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text})
		}
	}
	return msgs
}

func splitThinking(content string) (thinking, text string) {
	m := thinkBlock.FindStringSubmatchIndex(content)
	if m == nil {
		return "", content
	}
	thinking = strings.TrimSpace(content[m[2]:m[3]])
	text = strings.TrimLeft(content[m[1]:], " \t\r\n")
	return thinking, text
}

func cleanTitle(raw string) string {
	_, title := splitThinking(raw)
	title = strings.TrimSpace(title)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if strings.HasPrefix(strings.ToLower(title), "title:") {
		title = title[len("title:"):]
	}
	title = strings.Trim(strings.TrimSpace(title), "\"'*`# ")
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	return title
}
