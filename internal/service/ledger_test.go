package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Stores) {
	t.Helper()
	stores := store.NewMemoryStores()
	ledger := NewLedger(stores.Conversations, stores.Accounts, DefaultLedgerConfig(), logger.Discard())
	return ledger, stores
}

func seedAccount(t *testing.T, stores *store.Stores, id string) {
	t.Helper()
	require.NoError(t, stores.Accounts.Create(context.Background(), &models.Account{
		ID:       id,
		Username: id,
		Email:    id + "@example.com",
		Role:     models.RoleUser,
		Active:   true,
	}))
}

func TestAppendUserMessageCreatesConversation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, msg, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "  Hello  "})
	require.NoError(t, err)
	require.NotNil(t, msg)

	conv, err := ledger.GetConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, models.RoleUserMessage, conv.Messages[0].Role)
	assert.Equal(t, models.ModalityText, conv.Messages[0].Metadata.InputType)
	assert.True(t, conv.Active)
	assert.Equal(t, "dwiju", conv.Settings.Persona)
	assert.Equal(t, "gpt-4-turbo-preview", conv.Settings.Model)
}

func TestAppendUserMessageRejectsInvalidInput(t *testing.T) {
	ledger, stores := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   UserMessage
	}{
		{"blank text", UserMessage{AccountID: "alice", SessionID: "s1", Text: "   "}},
		{"missing account", UserMessage{SessionID: "s1", Text: "hi"}},
		{"missing session", UserMessage{AccountID: "alice", Text: "hi"}},
		{"unknown modality", UserMessage{AccountID: "alice", SessionID: "s1", Text: "hi", Modality: "smell"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ledger.AppendUserMessage(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := stores.Conversations.Get(ctx, "alice", "s1")
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing should be persisted on validation failure")
}

func TestTotalsHoldAfterEveryAppend(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	expectedTokens := 0
	for i := 1; i <= 12; i++ {
		var conv *models.Conversation
		var err error
		if i%2 == 1 {
			conv, _, err = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: fmt.Sprintf("question %d", i)})
		} else {
			expectedTokens += i * 3
			conv, _, err = ledger.AppendAssistantMessage(ctx, "alice", "s1", AssistantReply{Text: "answer", Tokens: i * 3})
		}
		require.NoError(t, err)
		assert.Equal(t, i, conv.MessageCount)
		assert.Equal(t, expectedTokens, conv.TokenCount)
		assert.NoError(t, CheckTotals(conv))
	}
}

func TestTitleDerivation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	short := "What is the weather today?"
	conv, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "short", Text: short})
	require.NoError(t, err)
	assert.Equal(t, short, conv.Title)

	long := strings.Repeat("abcdefghij", 6)
	conv, _, err = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "long", Text: long})
	require.NoError(t, err)
	assert.Equal(t, long[:50]+"...", conv.Title)

	conv, _, err = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "short", Text: "A different question"})
	require.NoError(t, err)
	assert.Equal(t, short, conv.Title)
}

func TestTitleFromCountsRunes(t *testing.T) {
	text := strings.Repeat("न", 51)
	title := TitleFrom(text)
	assert.Equal(t, strings.Repeat("न", 50)+"...", title)
	assert.Equal(t, "exact", TitleFrom("exact"))
}

func TestPromptWindowKeepsTrailingMessages(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if i%2 == 0 {
			_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: fmt.Sprintf("m%d", i)})
			require.NoError(t, err)
		} else {
			_, _, err := ledger.AppendAssistantMessage(ctx, "alice", "s1", AssistantReply{Text: fmt.Sprintf("m%d", i), Tokens: 1})
			require.NoError(t, err)
		}
	}

	window, err := ledger.BuildPromptWindow(ctx, "alice", "s1", 10)
	require.NoError(t, err)
	require.Len(t, window, 11)
	assert.Equal(t, models.RoleSystem, window[0].Role)
	assert.Equal(t, SystemPrompt("dwiju"), window[0].Content)
	for i, m := range window[1:] {
		assert.Equal(t, fmt.Sprintf("m%d", 15+i), m.Content)
	}
}

func TestPromptWindowUsesPersona(t *testing.T) {
	conv := &models.Conversation{Messages: []models.Message{{Role: models.RoleUserMessage, Content: "hi"}}}

	window := PromptWindow(conv, "Doctor", 10)
	require.Len(t, window, 2)
	assert.Equal(t, SystemPrompt("doctor"), window[0].Content)

	window = PromptWindow(conv, "pirate", 10)
	assert.Equal(t, SystemPrompt(DefaultPersona), window[0].Content)
}

func TestClearConversation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "Hello"})
	require.NoError(t, err)
	_, _, err = ledger.AppendAssistantMessage(ctx, "alice", "s1", AssistantReply{Text: "Hi", Tokens: 9})
	require.NoError(t, err)

	conv, err := ledger.ClearConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.MessageCount)
	assert.Equal(t, 0, conv.TokenCount)
	assert.Empty(t, conv.Messages)
	assert.True(t, conv.Active)

	stored, err := ledger.GetConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Empty(t, stored.Messages)
	assert.Equal(t, "Hello", stored.Title)
}

func TestDeactivateConversation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	assert.ErrorIs(t, ledger.DeactivateConversation(ctx, "alice", "missing"), store.ErrNotFound)

	_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "Hello"})
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.DeactivateConversation(ctx, "bob", "s1"), store.ErrNotFound)

	require.NoError(t, ledger.DeactivateConversation(ctx, "alice", "s1"))
	require.NoError(t, ledger.DeactivateConversation(ctx, "alice", "s1"))

	conv, err := ledger.GetConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.False(t, conv.Active)
}

func TestForeignSessionIsRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "Hello"})
	require.NoError(t, err)

	_, _, err = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "bob", SessionID: "s1", Text: "Mine now"})
	dup, ok := store.IsDuplicateKey(err)
	require.True(t, ok)
	assert.Equal(t, "sessionId", dup.Field)

	_, err = ledger.GetConversation(ctx, "bob", "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	conv, err := ledger.GetConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestAppendAssistantRequiresConversation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, _, err := ledger.AppendAssistantMessage(context.Background(), "alice", "nope", AssistantReply{Text: "hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentFirstAppendCreatesOneConversation(t *testing.T) {
	ledger, stores := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "race", Text: fmt.Sprintf("message %d", i)})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	items, total, err := stores.Conversations.List(ctx, "alice", store.ConversationQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	conv, err := ledger.GetConversation(ctx, "alice", "race")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	contents := []string{conv.Messages[0].Content, conv.Messages[1].Content}
	assert.ElementsMatch(t, []string{"message 0", "message 1"}, contents)
	assert.NotEqual(t, conv.Messages[0].MessageID, conv.Messages[1].MessageID)
}

func TestRecordUsage(t *testing.T) {
	ledger, stores := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, stores, "alice")

	require.NoError(t, ledger.RecordUsage(ctx, "alice", models.UsageVoice))
	require.NoError(t, ledger.RecordUsage(ctx, "alice", models.UsageVoice))
	assert.ErrorIs(t, ledger.RecordUsage(ctx, "alice", "smsRequests"), ErrInvalidInput)
	assert.ErrorIs(t, ledger.RecordUsage(ctx, "ghost", models.UsageChat), store.ErrNotFound)

	account, err := stores.Accounts.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), account.Usage.VoiceRequests)
	assert.Equal(t, int64(0), account.Usage.ChatRequests)
}

func TestListConversationsOrderAndFilter(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, sid := range []string{"a", "b", "c"} {
		_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: sid, Text: "hi " + sid})
		require.NoError(t, err)
	}
	_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "bob", SessionID: "z", Text: "other"})
	require.NoError(t, err)
	require.NoError(t, ledger.DeactivateConversation(ctx, "alice", "b"))

	all, page, err := ledger.ListConversations(ctx, "alice", store.ConversationQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), page.Total)

	active, _, err := ledger.ListConversations(ctx, "alice", store.ConversationQuery{Page: 1, Limit: 10, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, s := range active {
		assert.NotEqual(t, "b", s.SessionID)
	}
}

func TestCleanupIdle(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, _, err := ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "hi"})
	require.NoError(t, err)

	_, err = ledger.CleanupIdle(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := ledger.CleanupIdle(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestNewMessageIDShape(t *testing.T) {
	ledger, _ := newTestLedger(t)
	id := newMessageID(ledger.now())
	assert.Regexp(t, `^[0-9]{13}[0-9a-f]{9}$`, id)
}

// eagerSeedStore builds the seed on every call, the way the Postgres store
// does for its insert-or-ignore.
type eagerSeedStore struct {
	store.ConversationStore
}

func (s eagerSeedStore) Mutate(ctx context.Context, accountID, sessionID string, init func() *models.Conversation, fn store.MutateFunc) (*models.Conversation, bool, error) {
	if init != nil {
		_ = init()
	}
	return s.ConversationStore.Mutate(ctx, accountID, sessionID, init, fn)
}

func TestConversationCreatedLoggedOnlyOnInsert(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(logger.Config{Level: "info", JSON: true, Output: &buf})
	require.NoError(t, err)

	stores := store.NewMemoryStores()
	ledger := NewLedger(eagerSeedStore{stores.Conversations}, stores.Accounts, DefaultLedgerConfig(), log)
	ctx := context.Background()

	_, _, err = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "Hello"})
	require.NoError(t, err)
	_, err = ledger.ClearConversation(ctx, "alice", "s1")
	require.NoError(t, err)
	_, _, err = ledger.AppendUserMessage(ctx, UserMessage{AccountID: "alice", SessionID: "s1", Text: "Hello again"})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(buf.String(), `"msg":"conversation created"`))
}
