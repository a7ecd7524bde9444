package api

import (
	"context"
	"errors"
	"fmt"

	"dwiju-assistant/backend/internal/provider"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/internal/store"
	apperrors "dwiju-assistant/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// toAppError maps domain errors onto the response taxonomy. notFound is the
// message used for store.ErrNotFound.
func toAppError(err error, notFound string) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var inputErr *service.InputError
	if errors.As(err, &inputErr) {
		e := apperrors.NewBadRequestError(apperrors.CodeValidation, inputErr.Message)
		if inputErr.Field != "" {
			e = e.WithDetails(gin.H{"field": inputErr.Field})
		}
		return e
	}

	if dup, ok := store.IsDuplicateKey(err); ok {
		return apperrors.ConflictWithDetails(apperrors.CodeDuplicate,
			fmt.Sprintf("Duplicate value for %s", dup.Field), gin.H{"field": dup.Field})
	}

	if pe, ok := provider.AsError(err); ok {
		return providerError(pe)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeNotFound, notFound)
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewUnauthorizedError(apperrors.CodeInvalidCreds, "Invalid email or password")
	case errors.Is(err, service.ErrAccountDisabled):
		return apperrors.NewUnauthorizedError(apperrors.CodeAccountDisabled, "Account is disabled")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewGatewayTimeoutError(apperrors.CodeAITimeout, "AI service request timed out").WithCause(err)
	}

	return apperrors.FromError(err)
}

func providerError(pe *provider.Error) *apperrors.AppError {
	switch pe.Kind {
	case provider.KindAuth:
		return apperrors.NewInternalServerError(apperrors.CodeAIAuth, "AI service authentication failed").WithCause(pe)
	case provider.KindRateLimited:
		retry := pe.RetryAfter
		if retry <= 0 {
			retry = provider.DefaultRetryAfter
		}
		return apperrors.NewTooManyRequestsError(apperrors.CodeAIRateLimit, "AI service rate limit exceeded", retry).WithCause(pe)
	case provider.KindTimeout:
		return apperrors.NewGatewayTimeoutError(apperrors.CodeAITimeout, "AI service request timed out").WithCause(pe)
	default:
		return apperrors.NewServiceUnavailableError(apperrors.CodeAIService, "AI service temporarily unavailable").WithCause(pe)
	}
}

// fail attaches err to the context for the error middleware and aborts.
func fail(c *gin.Context, err error, notFound string) {
	_ = c.Error(toAppError(err, notFound))
	c.Abort()
}

func badRequest(c *gin.Context, msg string) {
	_ = c.Error(apperrors.NewBadRequestError(apperrors.CodeValidation, msg))
	c.Abort()
}

// ChatError maps an exchange failure the same way POST /api/chat does.
func ChatError(err error) *apperrors.AppError {
	return toAppError(err, sessionNotFound)
}
