package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dwiju-assistant/backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Gemini calls Google's Gemini models.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a client for apiKey.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is not configured")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: cl}, nil
}

// Close releases the underlying connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete implements Completer. System messages become the model's system
// instruction; the last user message is sent against the remaining history.
func (g *Gemini) Complete(ctx context.Context, req Request) (*Completion, error) {
	m := g.client.GenerativeModel(req.Model)
	m.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var system []string
	var history []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)
		case models.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(history) == 0 {
		return &Completion{Model: req.Model}, nil
	}

	last := history[len(history)-1]
	cs := m.StartChat()
	cs.History = history[:len(history)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, classifyGemini(ctx, err)
	}

	out := &Completion{Model: req.Model}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		out.Text = b.String()
	}
	return out, nil
}

func classifyGemini(ctx context.Context, err error) error {
	if cerr := classifyContext(ctx, err); cerr != nil {
		return cerr
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyStatus(gErr.Code, err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return &Error{Kind: KindAuth, Err: err}
		case codes.ResourceExhausted:
			return &Error{Kind: KindRateLimited, RetryAfter: DefaultRetryAfter, Err: err}
		case codes.DeadlineExceeded:
			return &Error{Kind: KindTimeout, Err: err}
		}
	}
	return &Error{Kind: KindUnavailable, Err: err}
}
