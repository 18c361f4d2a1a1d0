package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/auth"
	"github.com/fpang/videointel/internal/chat"
)

// InitGeminiClient resolves the API key, creates a client, and validates
// the key against model. Validation failures are returned with a hint the
// user can act on.
func InitGeminiClient(ctx context.Context, model string) (*genai.Client, error) {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		return nil, err
	}

	client, err := chat.NewClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("Gemini client initialized")

	if err := auth.ValidateAPIKey(ctx, client.Models, model); err != nil {
		return nil, fmt.Errorf("%s: %w", DescribeValidationError(err), err)
	}
	log.Info().Str("model", model).Msg("API key validated")
	return client, nil
}
