// Package chat implements the Gemini-backed collaborators: keyframe
// captioning, object detection, OCR, and audio transcription.
//
// Every collaborator talks to the API through the Generator interface, which
// *genai.Models satisfies, so tests can substitute a fake.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/metrics"
)

// Generator is the subset of the genai Models service the collaborators use.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// FileStore is the subset of the genai Files service used for large uploads.
type FileStore interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// request is one single-turn call.
type request struct {
	operation string
	model     string
	system    string
	parts     []*genai.Part
	jsonOut   bool
}

// generate sends req and returns the response text. Latency, call count,
// errors, and token usage are emitted as metrics per operation.
func generate(ctx context.Context, gen Generator, req request) (string, error) {
	config := &genai.GenerateContentConfig{}
	if req.system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.system}},
		}
	}
	if req.jsonOut {
		config.ResponseMIMEType = "application/json"
	}
	contents := []*genai.Content{{Role: "user", Parts: req.parts}}

	log.Debug().
		Str("operation", req.operation).
		Str("model", req.model).
		Int("parts", len(req.parts)).
		Msg("Starting Gemini API call")

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, req.model, contents, config)
	elapsed := time.Since(start)

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", req.operation).
		Millis("GeminiApiLatencyMs", elapsed).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		log.Debug().Err(err).Str("operation", req.operation).Dur("duration", elapsed).Msg("Gemini API call failed")
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || resp.Text() == "" {
		return "", errEmptyResponse
	}

	log.Debug().
		Str("operation", req.operation).
		Dur("duration", elapsed).
		Int("response_length", len(resp.Text())).
		Msg("Gemini API call complete")
	return resp.Text(), nil
}

var errEmptyResponse = errors.New("received empty response from Gemini API")

// isTransient reports whether a failed call is worth retrying: rate limits,
// server errors, empty responses, and network timeouts.
func isTransient(err error) bool {
	if errors.Is(err, errEmptyResponse) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return transientCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return transientCode(apiErrPtr.Code)
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func transientCode(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
