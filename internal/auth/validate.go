package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/chat"
	"github.com/fpang/videointel/internal/metrics"
)

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	ErrTypeUnknown ValidationErrorType = iota
	ErrTypeInvalidKey
	ErrTypeNetworkError
	ErrTypeQuotaExceeded
)

func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	}
	return "unknown"
}

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateAPIKey verifies the key behind gen with a minimal request to
// model. It returns nil if the key works, or a *ValidationError.
func ValidateAPIKey(ctx context.Context, gen chat.Generator, model string) error {
	log.Debug().Str("model", model).Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, model, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	var verr *ValidationError
	result := "success"
	switch {
	case err != nil:
		verr = classifyError(err)
		result = verr.Type.String()
	case resp == nil || len(resp.Candidates) == 0:
		verr = &ValidationError{Type: ErrTypeUnknown, Message: "API returned empty response"}
		result = "empty_response"
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Millis("ApiKeyValidationMs", elapsed).
		Count("ApiKeyValidationResult").
		Flush()

	if verr != nil {
		log.Debug().Err(verr).Str("result", result).Dur("duration", elapsed).Msg("API key validation failed")
		return verr
	}
	log.Debug().Dur("duration", elapsed).Msg("API key validated")
	return nil
}

// ValidateKey is ValidateAPIKey with a client built from apiKey.
func ValidateKey(ctx context.Context, apiKey, model string) error {
	client, err := chat.NewClient(ctx, apiKey)
	if err != nil {
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "cannot create client", Err: err}
	}
	return ValidateAPIKey(ctx, client.Models, model)
}

func classifyError(err error) *ValidationError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyAPIError(*apiErrPtr, err)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid"),
		strings.Contains(errLower, "invalid api key"),
		strings.Contains(errLower, "api_key_invalid"),
		strings.Contains(errLower, "permission denied"):
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "API key is invalid or has been revoked", Err: err}
	case strings.Contains(errLower, "quota"),
		strings.Contains(errLower, "resource exhausted"),
		strings.Contains(errLower, "rate limit"):
		return &ValidationError{Type: ErrTypeQuotaExceeded, Message: "API quota exceeded or rate limited", Err: err}
	case strings.Contains(errLower, "connection"),
		strings.Contains(errLower, "network"),
		strings.Contains(errLower, "timeout"),
		strings.Contains(errLower, "dial"),
		strings.Contains(errLower, "no such host"):
		return &ValidationError{Type: ErrTypeNetworkError, Message: "network error reaching the Gemini API", Err: err}
	}
	return &ValidationError{Type: ErrTypeUnknown, Message: "failed to validate API key", Err: err}
}

func classifyAPIError(apiErr genai.APIError, err error) *ValidationError {
	switch {
	case apiErr.Code == 400:
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "bad request, API key may be malformed", Err: err}
	case apiErr.Code == 401 || apiErr.Code == 403:
		return &ValidationError{Type: ErrTypeInvalidKey, Message: "API key is invalid, expired, or lacks permissions", Err: err}
	case apiErr.Code == 429:
		return &ValidationError{Type: ErrTypeQuotaExceeded, Message: "API rate limit exceeded", Err: err}
	case apiErr.Code >= 500:
		return &ValidationError{Type: ErrTypeNetworkError, Message: "Gemini API server error", Err: err}
	}
	return &ValidationError{Type: ErrTypeUnknown, Message: apiErr.Message, Err: err}
}
