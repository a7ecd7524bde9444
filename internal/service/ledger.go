package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/google/uuid"
)

const (
	titleMaxRunes     = 50
	titleEllipsis     = "..."
	defaultWindowSize = 10
)

// LedgerConfig holds the defaults applied to new conversations.
type LedgerConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Language    string
	Persona     string
	WindowSize  int
}

// DefaultLedgerConfig mirrors the documented defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Model:       "gpt-4-turbo-preview",
		Temperature: 0.7,
		MaxTokens:   4000,
		Language:    "en",
		Persona:     DefaultPersona,
		WindowSize:  defaultWindowSize,
	}
}

// Ledger owns conversation transcripts, their derived totals, and the
// per-account usage counters.
type Ledger struct {
	conversations store.ConversationStore
	accounts      store.AccountStore
	cfg           LedgerConfig
	log           *logger.Logger
	now           func() time.Time
}

// NewLedger creates a ledger over the given stores.
func NewLedger(conversations store.ConversationStore, accounts store.AccountStore, cfg LedgerConfig, log *logger.Logger) *Ledger {
	def := DefaultLedgerConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		cfg.Temperature = def.Temperature
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Persona == "" {
		cfg.Persona = def.Persona
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Ledger{conversations: conversations, accounts: accounts, cfg: cfg, log: log, now: time.Now}
}

// Config returns the effective defaults.
func (l *Ledger) Config() LedgerConfig { return l.cfg }

// UserMessage is the input of AppendUserMessage.
type UserMessage struct {
	AccountID   string
	SessionID   string
	Text        string
	Modality    models.Modality
	Language    string
	Persona     string
	Attachments []models.Attachment
}

// AppendUserMessage appends a user message, creating the conversation with
// default settings when it does not exist yet.
func (l *Ledger) AppendUserMessage(ctx context.Context, in UserMessage) (*models.Conversation, *models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, nil, invalid("message", "Message is required")
	}
	if in.AccountID == "" {
		return nil, nil, invalid("userId", "account is required")
	}
	if in.SessionID == "" {
		return nil, nil, invalid("sessionId", "sessionId is required")
	}
	modality := in.Modality
	if modality == "" {
		modality = models.ModalityText
	}
	if !modality.Valid() {
		return nil, nil, invalid("inputType", "inputType must be one of text, voice, vision")
	}
	language := in.Language
	if language == "" {
		language = l.cfg.Language
	}
	persona := in.Persona
	if persona == "" {
		persona = l.cfg.Persona
	}

	init := func() *models.Conversation {
		return l.newConversation(language, persona)
	}

	var appended models.Message
	conv, created, err := l.conversations.Mutate(ctx, in.AccountID, in.SessionID, init, func(c *models.Conversation) error {
		now := l.now()
		appended = models.Message{
			MessageID: newMessageID(now),
			Role:      models.RoleUserMessage,
			Content:   text,
			Timestamp: now,
			Metadata: models.MessageMetadata{
				Language:    language,
				InputType:   modality,
				Model:       c.Settings.Model,
				Attachments: in.Attachments,
			},
		}
		c.Messages = append(c.Messages, appended)
		deriveTitle(c)
		return recompute(c, now)
	})
	if err != nil {
		return nil, nil, err
	}

	if created {
		l.log.Info("conversation created", "session_id", conv.SessionID, "user_id", in.AccountID, "persona", conv.Settings.Persona)
	}
	return conv, lastMessage(conv), nil
}

// AssistantReply is the input of AppendAssistantMessage.
type AssistantReply struct {
	Text      string
	Tokens    int
	Model     string
	LatencyMs int64
	Language  string
}

// AppendAssistantMessage appends a completion to an existing conversation.
func (l *Ledger) AppendAssistantMessage(ctx context.Context, accountID, sessionID string, reply AssistantReply) (*models.Conversation, *models.Message, error) {
	if reply.Tokens < 0 {
		reply.Tokens = 0
	}
	conv, _, err := l.conversations.Mutate(ctx, accountID, sessionID, nil, func(c *models.Conversation) error {
		now := l.now()
		model := reply.Model
		if model == "" {
			model = c.Settings.Model
		}
		c.Messages = append(c.Messages, models.Message{
			MessageID: newMessageID(now),
			Role:      models.RoleAssistant,
			Content:   reply.Text,
			Timestamp: now,
			Metadata: models.MessageMetadata{
				Tokens:       reply.Tokens,
				Model:        model,
				ResponseTime: reply.LatencyMs,
				Language:     reply.Language,
			},
		})
		return recompute(c, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, lastMessage(conv), nil
}

// BuildPromptWindow loads the conversation and returns its prompt window
// using the conversation's own persona.
func (l *Ledger) BuildPromptWindow(ctx context.Context, accountID, sessionID string, windowSize int) ([]models.PromptMessage, error) {
	conv, err := l.conversations.Get(ctx, accountID, sessionID)
	if err != nil {
		return nil, err
	}
	if windowSize <= 0 {
		windowSize = l.cfg.WindowSize
	}
	return PromptWindow(conv, conv.Settings.Persona, windowSize), nil
}

// PromptWindow returns the persona instruction followed by the last
// windowSize messages of conv in chronological order.
func PromptWindow(conv *models.Conversation, persona string, windowSize int) []models.PromptMessage {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	msgs := conv.Messages
	if len(msgs) > windowSize {
		msgs = msgs[len(msgs)-windowSize:]
	}

	out := make([]models.PromptMessage, 0, len(msgs)+1)
	out = append(out, models.PromptMessage{Role: models.RoleSystem, Content: SystemPrompt(persona)})
	for _, m := range msgs {
		out = append(out, models.PromptMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// RecordUsage increments the account's counter for kind.
func (l *Ledger) RecordUsage(ctx context.Context, accountID string, kind models.UsageKind) error {
	if !kind.Valid() {
		return invalid("kind", "usage kind must be one of chatRequests, voiceRequests, visionRequests")
	}
	return l.accounts.IncrementUsage(ctx, accountID, kind)
}

// ListConversations returns one page of the account's conversations, most
// recently active first.
func (l *Ledger) ListConversations(ctx context.Context, accountID string, q store.ConversationQuery) ([]models.ConversationSummary, models.Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	items, total, err := l.conversations.List(ctx, accountID, q)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return items, models.NewPagination(q.Page, q.Limit, total), nil
}

// GetConversation returns the full transcript of a conversation owned by accountID.
func (l *Ledger) GetConversation(ctx context.Context, accountID, sessionID string) (*models.Conversation, error) {
	return l.conversations.Get(ctx, accountID, sessionID)
}

// ClearConversation empties the transcript and resets the totals. The
// conversation stays active.
func (l *Ledger) ClearConversation(ctx context.Context, accountID, sessionID string) (*models.Conversation, error) {
	conv, _, err := l.conversations.Mutate(ctx, accountID, sessionID, nil, func(c *models.Conversation) error {
		c.Messages = c.Messages[:0]
		return recompute(c, l.now())
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("conversation cleared", "session_id", sessionID, "user_id", accountID)
	return conv, nil
}

// DeactivateConversation flips the active flag off. Repeating it is a no-op.
func (l *Ledger) DeactivateConversation(ctx context.Context, accountID, sessionID string) error {
	_, _, err := l.conversations.Mutate(ctx, accountID, sessionID, nil, func(c *models.Conversation) error {
		c.Active = false
		return nil
	})
	if err != nil {
		return err
	}
	l.log.Info("conversation deactivated", "session_id", sessionID, "user_id", accountID)
	return nil
}

// DeleteConversation permanently removes a conversation. Admin only.
func (l *Ledger) DeleteConversation(ctx context.Context, sessionID string) error {
	if err := l.conversations.Delete(ctx, sessionID); err != nil {
		return err
	}
	l.log.Warn("conversation deleted", "session_id", sessionID)
	return nil
}

// CleanupIdle deactivates conversations with no activity in the last days.
func (l *Ledger) CleanupIdle(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, invalid("days", "days must be positive")
	}
	cutoff := l.now().AddDate(0, 0, -days)
	n, err := l.conversations.DeactivateIdle(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	l.log.Info("idle conversations deactivated", "count", n, "cutoff", cutoff)
	return n, nil
}

func (l *Ledger) newConversation(language, persona string) *models.Conversation {
	now := l.now()
	return &models.Conversation{
		Title: models.DefaultTitle,
		Settings: models.Settings{
			Model:       l.cfg.Model,
			Temperature: l.cfg.Temperature,
			MaxTokens:   l.cfg.MaxTokens,
			Language:    language,
			Persona:     persona,
		},
		Active:       true,
		LastActivity: now,
	}
}

// recompute derives the totals from the transcript and checks them.
func recompute(c *models.Conversation, now time.Time) error {
	c.MessageCount = len(c.Messages)
	c.TokenCount = 0
	for _, m := range c.Messages {
		c.TokenCount += m.Metadata.Tokens
	}
	c.LastActivity = now
	return CheckTotals(c)
}

// CheckTotals verifies messageCount and tokenCount against the transcript.
func CheckTotals(c *models.Conversation) error {
	if c.MessageCount != len(c.Messages) {
		return fmt.Errorf("%w: messageCount %d, transcript has %d", ErrInvariant, c.MessageCount, len(c.Messages))
	}
	sum := 0
	for _, m := range c.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %s has role %q", ErrInvariant, m.MessageID, m.Role)
		}
		sum += m.Metadata.Tokens
	}
	if c.TokenCount != sum {
		return fmt.Errorf("%w: tokenCount %d, transcript sums to %d", ErrInvariant, c.TokenCount, sum)
	}
	return nil
}

// deriveTitle sets the title from the first user message while the title
// is still the default.
func deriveTitle(c *models.Conversation) {
	if c.Title != models.DefaultTitle {
		return
	}
	for _, m := range c.Messages {
		if m.Role == models.RoleUserMessage {
			c.Title = TitleFrom(m.Content)
			return
		}
	}
}

// TitleFrom caps text at 50 characters, marking truncation with "...".
func TitleFrom(text string) string {
	if utf8.RuneCountInString(text) <= titleMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:titleMaxRunes]) + titleEllipsis
}

// newMessageID is a millisecond timestamp followed by nine random
// lowercase alphanumerics.
func newMessageID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strconv.FormatInt(now.UnixMilli(), 10) + suffix
}

func lastMessage(c *models.Conversation) *models.Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}
