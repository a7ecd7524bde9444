// Package validator checks incoming requests against the OpenAPI document
// before they reach a handler.
package validator

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	apperrors "dwiju-assistant/backend/pkg/errors"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates requests against an OpenAPI document
type OpenAPIValidator struct {
	swagger    *openapi3.T
	router     routers.Router
	schemaPath string
	log        *logger.Logger
	mutex      sync.RWMutex
}

// NewOpenAPIValidator creates a validator from an in-memory document.
func NewOpenAPIValidator(data []byte, log *logger.Logger) (*OpenAPIValidator, error) {
	swagger, router, err := load(data)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &OpenAPIValidator{swagger: swagger, router: router, log: log}, nil
}

// NewOpenAPIValidatorFromFile creates a validator that can be reloaded from path.
func NewOpenAPIValidatorFromFile(path string, log *logger.Logger) (*OpenAPIValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", path, err)
	}
	v, err := NewOpenAPIValidator(data, log)
	if err != nil {
		return nil, err
	}
	v.schemaPath = path
	return v, nil
}

func load(data []byte) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OpenAPI schema: %w", err)
	}
	if err := swagger.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}
	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return swagger, router, nil
}

// Document returns the loaded document.
func (v *OpenAPIValidator) Document() *openapi3.T {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	return v.swagger
}

// ReloadSchema re-reads the file the validator was created from.
func (v *OpenAPIValidator) ReloadSchema() error {
	if v.schemaPath == "" {
		return errors.New("validator was not loaded from a file")
	}
	data, err := os.ReadFile(v.schemaPath)
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI schema from %s: %w", v.schemaPath, err)
	}
	swagger, router, err := load(data)
	if err != nil {
		return err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.swagger = swagger
	v.router = router
	v.log.Info("OpenAPI schema reloaded", "path", v.schemaPath)
	return nil
}

// Middleware rejects requests whose parameters or body do not match the
// document with a 400 VALIDATION_ERROR. Routes the document does not
// describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v.mutex.RLock()
		router := v.router
		v.mutex.RUnlock()

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         false,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			_ = c.Error(apperrors.NewBadRequestError(apperrors.CodeValidation, describe(err)).WithCause(err))
			c.Abort()
			return
		}

		c.Next()
	}
}

// describe turns a kin-openapi error into a single client-facing line.
func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("Invalid %s parameter %q", reqErr.Parameter.In, reqErr.Parameter.Name)
		case reqErr.RequestBody != nil:
			var schemaErr *openapi3.SchemaError
			if errors.As(reqErr.Err, &schemaErr) {
				if field := strings.Join(schemaErr.JSONPointer(), "."); field != "" {
					return fmt.Sprintf("Invalid request body: %s %s", field, schemaErr.Reason)
				}
				return "Invalid request body: " + schemaErr.Reason
			}
			return "Invalid request body"
		}
	}
	return "Invalid request"
}
