package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidInput is matched by every validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled is returned by Login for deactivated accounts.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrInvariant signals a conversation whose derived totals disagree with
	// its transcript. It is never expected in practice.
	ErrInvariant = errors.New("conversation invariant violated")
)

// InputError is a validation failure on one field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Is makes InputError match ErrInvalidInput.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs struct-tag validation and reports the first failure.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", "invalid request")
	}
	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, "%s is required", field)
	case "min":
		return invalid(field, "%s must be at least %s characters", field, fe.Param())
	case "max":
		return invalid(field, "%s must be at most %s characters", field, fe.Param())
	case "email":
		return invalid(field, "%s must be a valid email address", field)
	case "oneof":
		return invalid(field, "%s must be one of: %s", field, fe.Param())
	default:
		return invalid(field, "%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
