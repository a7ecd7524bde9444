package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/provider"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu       sync.Mutex
	reply    *provider.Completion
	err      error
	block    bool
	started  chan struct{}
	requests []provider.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		if f.started != nil {
			close(f.started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) lastRequest() provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestChat(t *testing.T, completer provider.Completer, timeout time.Duration) (*ChatService, *store.Stores) {
	t.Helper()
	ledger, stores := newTestLedger(t)
	return NewChatService(ledger, completer, timeout, nil, logger.Discard()), stores
}

func TestExchangeEndToEnd(t *testing.T) {
	fake := &fakeCompleter{reply: &provider.Completion{Text: "Hi there", Tokens: 12, Model: "gpt-4-0125-preview"}}
	chat, stores := newTestChat(t, fake, time.Second)
	seedAccount(t, stores, "alice")
	ctx := context.Background()

	resp, err := chat.Exchange(ctx, "alice", models.ChatRequest{Message: "Hello", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Hi there", resp.Message)
	assert.Equal(t, "s1", resp.SessionID)
	assert.NotEmpty(t, resp.MessageID)
	assert.Equal(t, 12, resp.Metadata.Tokens)
	assert.Equal(t, "gpt-4-turbo-preview", resp.Metadata.Model)

	conv, err := chat.Ledger().GetConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", conv.Title)
	assert.Equal(t, 2, conv.MessageCount)
	assert.Equal(t, 12, conv.TokenCount)
	assert.Equal(t, models.RoleUserMessage, conv.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, resp.MessageID, conv.Messages[1].MessageID)

	account, err := stores.Accounts.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), account.Usage.ChatRequests)

	req := fake.lastRequest()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Hello", req.Messages[1].Content)
	assert.Equal(t, "gpt-4-turbo-preview", req.Model)
	assert.Equal(t, 4000, req.MaxTokens)
}

func TestExchangeGeneratesSessionID(t *testing.T) {
	fake := &fakeCompleter{reply: &provider.Completion{Text: "ok", Tokens: 1}}
	chat, stores := newTestChat(t, fake, time.Second)
	seedAccount(t, stores, "alice")

	resp, err := chat.Exchange(context.Background(), "alice", models.ChatRequest{Message: "Hello"})
	require.NoError(t, err)
	assert.Len(t, resp.SessionID, 36)
}

func TestExchangeBillsByModality(t *testing.T) {
	fake := &fakeCompleter{reply: &provider.Completion{Text: "ok", Tokens: 1}}
	chat, stores := newTestChat(t, fake, time.Second)
	seedAccount(t, stores, "alice")
	ctx := context.Background()

	_, err := chat.Exchange(ctx, "alice", models.ChatRequest{Message: "spoken", SessionID: "v", InputType: models.ModalityVoice})
	require.NoError(t, err)
	_, err = chat.Exchange(ctx, "alice", models.ChatRequest{Message: "look", SessionID: "v", InputType: models.ModalityVision})
	require.NoError(t, err)

	account, err := stores.Accounts.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Usage.ChatRequests)
	assert.Equal(t, int64(1), account.Usage.VoiceRequests)
	assert.Equal(t, int64(1), account.Usage.VisionRequests)
}

func TestExchangeRejectsEmptyMessage(t *testing.T) {
	fake := &fakeCompleter{reply: &provider.Completion{Text: "unused"}}
	chat, stores := newTestChat(t, fake, time.Second)

	_, err := chat.Exchange(context.Background(), "alice", models.ChatRequest{Message: "  ", SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, fake.requests)

	_, err = stores.Conversations.Get(context.Background(), "alice", "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExchangeProviderFailureKeepsUserMessage(t *testing.T) {
	fake := &fakeCompleter{err: &provider.Error{Kind: provider.KindRateLimited, Status: 429, RetryAfter: provider.DefaultRetryAfter, Err: errors.New("slow down")}}
	chat, stores := newTestChat(t, fake, time.Second)
	seedAccount(t, stores, "alice")
	ctx := context.Background()

	_, err := chat.Exchange(ctx, "alice", models.ChatRequest{Message: "Hello", SessionID: "s1"})
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, provider.KindRateLimited, pe.Kind)

	conv, err := chat.Ledger().GetConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, models.RoleUserMessage, conv.Messages[0].Role)

	account, err := stores.Accounts.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Usage.ChatRequests)
}

func TestExchangeTimeoutIsClassified(t *testing.T) {
	fake := &fakeCompleter{block: true}
	chat, stores := newTestChat(t, fake, 20*time.Millisecond)
	seedAccount(t, stores, "alice")

	_, err := chat.Exchange(context.Background(), "alice", models.ChatRequest{Message: "Hello", SessionID: "s1"})
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, provider.KindTimeout, pe.Kind)
}

func TestExchangeAbandonedLeavesUserMessageOnly(t *testing.T) {
	fake := &fakeCompleter{block: true, started: make(chan struct{})}
	chat, stores := newTestChat(t, fake, time.Minute)
	seedAccount(t, stores, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := chat.Exchange(ctx, "alice", models.ChatRequest{Message: "Hello", SessionID: "s1"})
		done <- err
	}()

	<-fake.started
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	_, classified := provider.AsError(err)
	assert.False(t, classified)

	conv, err := chat.Ledger().GetConversation(context.Background(), "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, 0, conv.TokenCount)
}

func TestExchangeSucceedsWhenUsageIncrementFails(t *testing.T) {
	fake := &fakeCompleter{reply: &provider.Completion{Text: "Hi", Tokens: 3}}
	chat, _ := newTestChat(t, fake, time.Second)

	// No account record exists, so the increment fails.
	resp, err := chat.Exchange(context.Background(), "ghost", models.ChatRequest{Message: "Hello", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", resp.Message)
}

func TestExchangeUsesRequestPersona(t *testing.T) {
	fake := &fakeCompleter{reply: &provider.Completion{Text: "ok"}}
	chat, stores := newTestChat(t, fake, time.Second)
	seedAccount(t, stores, "alice")
	ctx := context.Background()

	_, err := chat.Exchange(ctx, "alice", models.ChatRequest{Message: "crop advice", SessionID: "f", Persona: "farmer"})
	require.NoError(t, err)
	assert.Equal(t, SystemPrompt("farmer"), fake.lastRequest().Messages[0].Content)

	// Later turns fall back to the persona stored on the conversation.
	_, err = chat.Exchange(ctx, "alice", models.ChatRequest{Message: "and irrigation?", SessionID: "f"})
	require.NoError(t, err)
	req := fake.lastRequest()
	assert.Equal(t, SystemPrompt("farmer"), req.Messages[0].Content)
	assert.Len(t, req.Messages, 4)
}
