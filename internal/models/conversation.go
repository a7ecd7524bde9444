package models

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultTitle is the title of a conversation before its first user message.
const DefaultTitle = "New Chat"

// MessageRole is the author of a transcript entry.
type MessageRole string

const (
	RoleUserMessage MessageRole = "user"
	RoleAssistant   MessageRole = "assistant"
	RoleSystem      MessageRole = "system"
)

// Valid reports whether r is one of the three known roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUserMessage, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Modality is how a user message was produced.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityVoice  Modality = "voice"
	ModalityVision Modality = "vision"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityVoice, ModalityVision:
		return true
	}
	return false
}

// UsageKind returns the counter an exchange in this modality is billed to.
func (m Modality) UsageKind() UsageKind {
	switch m {
	case ModalityVoice:
		return UsageVoice
	case ModalityVision:
		return UsageVision
	default:
		return UsageChat
	}
}

// Conversation is one chat thread owned by an account.
type Conversation struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	SessionID    string    `gorm:"size:128;not null;uniqueIndex:idx_conversations_session_id" json:"sessionId"`
	AccountID    string    `gorm:"size:36;not null;index:idx_conversations_account_created,priority:1" json:"userId"`
	Title        string    `gorm:"type:text;not null" json:"title"`
	Settings     Settings  `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	Active       bool      `gorm:"not null;index" json:"isActive"`
	MessageCount int       `gorm:"not null;default:0" json:"totalMessages"`
	TokenCount   int       `gorm:"not null;default:0" json:"totalTokens"`
	LastActivity time.Time `gorm:"not null;index" json:"lastActivity"`
	Messages     []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
	CreatedAt    time.Time `gorm:"index:idx_conversations_account_created,priority:2" json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Settings are the generation parameters of a conversation.
type Settings struct {
	Model       string  `gorm:"size:64" json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Language    string  `gorm:"size:16" json:"language"`
	Persona     string  `gorm:"size:32" json:"persona"`
}

// Message is one immutable transcript entry.
type Message struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	ConversationID uint            `gorm:"not null;uniqueIndex:idx_messages_conversation_message,priority:1;index:idx_messages_conversation_seq,priority:1" json:"-"`
	MessageID      string          `gorm:"size:64;not null;uniqueIndex:idx_messages_conversation_message,priority:2" json:"id"`
	Seq            int             `gorm:"not null;index:idx_messages_conversation_seq,priority:2" json:"-"`
	Role           MessageRole     `gorm:"size:16;not null" json:"role"`
	Content        string          `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time       `gorm:"not null" json:"timestamp"`
	Metadata       MessageMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
}

// MessageMetadata annotates a message.
type MessageMetadata struct {
	Tokens       int                            `gorm:"not null;default:0" json:"tokens"`
	Model        string                         `gorm:"size:64" json:"model,omitempty"`
	ResponseTime int64                          `json:"responseTime,omitempty"`
	Language     string                         `gorm:"size:16" json:"language,omitempty"`
	InputType    Modality                       `gorm:"size:8" json:"inputType,omitempty"`
	Attachments  datatypes.JSONSlice[Attachment] `gorm:"type:jsonb" json:"attachments,omitempty"`
}

// Attachment describes a file referenced by a message.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// PromptMessage is a message reduced to what the provider sees.
type PromptMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ConversationSummary is a conversation without its transcript.
type ConversationSummary struct {
	SessionID    string    `json:"sessionId"`
	Title        string    `json:"title"`
	Active       bool      `json:"isActive"`
	MessageCount int       `json:"totalMessages"`
	TokenCount   int       `json:"totalTokens"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary drops the transcript.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		SessionID:    c.SessionID,
		Title:        c.Title,
		Active:       c.Active,
		MessageCount: c.MessageCount,
		TokenCount:   c.TokenCount,
		LastActivity: c.LastActivity,
		CreatedAt:    c.CreatedAt,
	}
}

// ChatRequest is the body of POST /api/chat and of websocket chat frames.
type ChatRequest struct {
	Message     string       `json:"message"`
	SessionID   string       `json:"sessionId"`
	Persona     string       `json:"persona,omitempty"`
	Language    string       `json:"language,omitempty"`
	InputType   Modality     `json:"inputType,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ChatResponse is the result of one exchange.
type ChatResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	SessionID string       `json:"sessionId"`
	MessageID string       `json:"messageId"`
	Metadata  ChatMetadata `json:"metadata"`
}

// ChatMetadata describes the assistant reply.
type ChatMetadata struct {
	ResponseTime int64  `json:"responseTime"`
	Tokens       int    `json:"tokens"`
	Model        string `json:"model"`
}

// Pagination is rendered alongside paged listings.
type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit,omitempty"`
}

// NewPagination computes page metadata for a 1-based page.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Current: page, Pages: pages, Total: total, Limit: limit}
}
