// Package chat implements the conversational policy assistant with a
// per-user message window.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/queryai/internal/adapters/chatstore"
	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/tracing"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/pkg/logger"
	"github.com/okian/queryai/pkg/metrics"
)

// DefaultUser owns messages sent without a user id.
const DefaultUser = "default_user"

const defaultTemperature = 0.7

const systemPrompt = `You are Query.AI, a friendly assistant for health-insurance policy holders.
Answer questions about coverage, exclusions, waiting periods, claims and premiums.
Be concise and accurate. When policy excerpts are provided, base your answer on them
and say so when they do not contain the answer. Never invent policy terms.`

// ClauseRetriever grounds replies on indexed policy text.
type ClauseRetriever interface {
	RetrieveClauses(ctx context.Context, query string) ([]model.ScoredChunk, error)
}

// Option applies a configuration option to the Bot.
type Option func(*Bot)

// WithTemperature sets the reply temperature.
func WithTemperature(t float64) Option {
	return func(b *Bot) {
		if t >= 0 {
			b.temperature = t
		}
	}
}

// WithRetriever grounds replies on retrieved clauses.
func WithRetriever(r ClauseRetriever) Option {
	return func(b *Bot) {
		b.retriever = r
	}
}

// WithTracer records each reply as a chain run.
func WithTracer(t tracing.Tracer) Option {
	return func(b *Bot) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

// Bot answers chat messages using the stored conversation as context.
type Bot struct {
	gen       llm.Generator
	store     chatstore.Store
	retriever ClauseRetriever
	tracer    tracing.Tracer

	temperature float64
	now         func() time.Time

	log logger.Logger
}

// New creates a Bot.
func New(gen llm.Generator, store chatstore.Store, opts ...Option) *Bot {
	b := &Bot{
		gen:         gen,
		store:       store,
		tracer:      tracing.Noop{},
		temperature: defaultTemperature,
		now:         time.Now,
		log:         logger.Get().Named("chat"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// UserID maps an empty id to DefaultUser.
func UserID(id string) string {
	if strings.TrimSpace(id) == "" {
		return DefaultUser
	}
	return id
}

// Respond replies to message in the conversation of userID.
func (b *Bot) Respond(ctx context.Context, userID, message string) (reply string, err error) {
	userID = UserID(userID)
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	ctx, run := b.tracer.Start(ctx, "ConversationChain", tracing.RunChain, map[string]any{"input": message, "user_id": userID})
	defer func() {
		run.End(map[string]any{"response": reply}, err)
	}()

	history, err := b.store.History(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == model.RoleAssistant {
			role = llm.RoleModel
		}
		msgs = append(msgs, llm.Message{Role: role, Text: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Text: message})

	resp, err := b.gen.Generate(ctx, llm.Request{
		Name:        "chat",
		System:      b.system(ctx, message),
		Messages:    msgs,
		Temperature: b.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	now := b.now()
	if err := b.store.Append(ctx, userID,
		model.ChatMessage{Role: model.RoleUser, Content: message, Timestamp: now},
		model.ChatMessage{Role: model.RoleAssistant, Content: resp.Text, Timestamp: now},
	); err != nil {
		return "", fmt.Errorf("save history: %w", err)
	}
	metrics.RecordChatMessage()
	return resp.Text, nil
}

// system adds retrieved policy excerpts to the system prompt when any match.
func (b *Bot) system(ctx context.Context, message string) string {
	if b.retriever == nil {
		return systemPrompt
	}
	hits, err := b.retriever.RetrieveClauses(ctx, message)
	if err != nil {
		b.log.Warn(ctx, "chat grounding failed", logger.Error(err))
		return systemPrompt
	}
	if len(hits) == 0 {
		return systemPrompt
	}
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nPolicy excerpts:\n")
	for _, h := range hits {
		sb.WriteString("- ")
		sb.WriteString(h.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// History returns the stored window of userID.
func (b *Bot) History(ctx context.Context, userID string) ([]model.ChatMessage, error) {
	return b.store.History(ctx, UserID(userID))
}

// Clear deletes the conversation of userID and reports whether it existed.
func (b *Bot) Clear(ctx context.Context, userID string) (bool, error) {
	return b.store.Clear(ctx, UserID(userID))
}

// Users lists users with a stored conversation and updates the gauge.
func (b *Bot) Users(ctx context.Context) ([]string, error) {
	users, err := b.store.Users(ctx)
	if err != nil {
		return nil, err
	}
	metrics.UpdateChatActiveUsers(len(users))
	return users, nil
}
