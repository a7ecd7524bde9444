package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/provider"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ChatService runs one chat exchange: record the user message, ask the
// provider, record the reply, bill the account.
type ChatService struct {
	ledger   *Ledger
	provider provider.Completer
	timeout  time.Duration
	metrics  *observability.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewChatService wires a chat service. metrics may be nil.
func NewChatService(ledger *Ledger, completer provider.Completer, timeout time.Duration, metrics *observability.Metrics, log *logger.Logger) *ChatService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &ChatService{
		ledger:   ledger,
		provider: completer,
		timeout:  timeout,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// Ledger exposes the underlying ledger.
func (s *ChatService) Ledger() *Ledger { return s.ledger }

// Exchange handles one inbound chat message for accountID.
//
// Validation happens before anything is persisted. If the provider call
// fails or is abandoned, the user message stays and no reply is appended.
func (s *ChatService) Exchange(ctx context.Context, accountID string, req models.ChatRequest) (*models.ChatResponse, error) {
	ctx, span := otel.Tracer("dwiju/chat").Start(ctx, "chat.exchange")
	defer span.End()

	if strings.TrimSpace(req.Message) == "" {
		s.metrics.RecordExchange(ctx, "invalid")
		return nil, invalid("message", "Message is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	modality := req.InputType
	if modality == "" {
		modality = models.ModalityText
	}

	conv, _, err := s.ledger.AppendUserMessage(ctx, UserMessage{
		AccountID:   accountID,
		SessionID:   req.SessionID,
		Text:        req.Message,
		Modality:    modality,
		Language:    req.Language,
		Persona:     req.Persona,
		Attachments: req.Attachments,
	})
	if err != nil {
		s.metrics.RecordExchange(ctx, outcomeFor(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", conv.SessionID))

	persona := req.Persona
	if persona == "" {
		persona = conv.Settings.Persona
	}
	language := req.Language
	if language == "" {
		language = conv.Settings.Language
	}

	completion, latency, err := s.complete(ctx, provider.Request{
		Model:       conv.Settings.Model,
		Messages:    PromptWindow(conv, persona, s.ledger.Config().WindowSize),
		MaxTokens:   conv.Settings.MaxTokens,
		Temperature: conv.Settings.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		s.metrics.RecordExchange(ctx, outcomeFor(err))
		s.logProviderError(err, conv.SessionID)
		return nil, err
	}

	conv, reply, err := s.ledger.AppendAssistantMessage(ctx, accountID, conv.SessionID, AssistantReply{
		Text:      completion.Text,
		Tokens:    completion.Tokens,
		Model:     conv.Settings.Model,
		LatencyMs: latency.Milliseconds(),
		Language:  language,
	})
	if err != nil {
		s.metrics.RecordExchange(ctx, outcomeFor(err))
		return nil, err
	}

	// Billing is best effort: the exchange already succeeded.
	kind := modality.UsageKind()
	if err := s.ledger.RecordUsage(ctx, accountID, kind); err != nil {
		s.metrics.RecordUsageIncrement(ctx, string(kind), false)
		s.log.Warn("usage increment failed", "user_id", accountID, "kind", string(kind), "error", err.Error())
	} else {
		s.metrics.RecordUsageIncrement(ctx, string(kind), true)
	}

	s.metrics.RecordExchange(ctx, "ok")
	return &models.ChatResponse{
		Success:   true,
		Message:   reply.Content,
		SessionID: conv.SessionID,
		MessageID: reply.MessageID,
		Metadata: models.ChatMetadata{
			ResponseTime: reply.Metadata.ResponseTime,
			Tokens:       reply.Metadata.Tokens,
			Model:        reply.Metadata.Model,
		},
	}, nil
}

func (s *ChatService) complete(ctx context.Context, req provider.Request) (*provider.Completion, time.Duration, error) {
	ctx, span := otel.Tracer("dwiju/chat").Start(ctx, "provider.complete")
	defer span.End()
	span.SetAttributes(attribute.String("model", req.Model), attribute.Int("messages", len(req.Messages)))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	completion, err := s.provider.Complete(callCtx, req)
	latency := s.now().Sub(start)

	if err != nil {
		// Distinguish our own deadline from the caller going away.
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			if _, ok := provider.AsError(err); !ok {
				err = &provider.Error{Kind: provider.KindTimeout, Err: err}
			}
		}
		s.metrics.RecordProviderLatency(ctx, latency, outcomeFor(err))
		return nil, latency, err
	}
	s.metrics.RecordProviderLatency(ctx, latency, "ok")
	span.SetAttributes(attribute.Int("tokens", completion.Tokens))
	return completion, latency, nil
}

func (s *ChatService) logProviderError(err error, sessionID string) {
	if pe, ok := provider.AsError(err); ok {
		s.log.Error("provider call failed", "session_id", sessionID, "kind", pe.Kind.String(), "status", pe.Status)
		return
	}
	s.log.Info("provider call abandoned", "session_id", sessionID, "reason", err.Error())
}

func outcomeFor(err error) string {
	if pe, ok := provider.AsError(err); ok {
		return "provider_" + pe.Kind.String()
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
