package chat

import "os"

// Gemini model IDs.
//
// | Model Name               | API Model ID           | Use Case                      |
// |--------------------------|------------------------|-------------------------------|
// | Gemini 3 Flash (Preview) | gemini-3-flash-preview | Best for speed + intelligence |
// | Gemini 2.5 Pro           | gemini-2.5-pro         | Stable, high-reasoning tasks  |
// | Gemini 2.5 Flash         | gemini-2.5-flash       | Stable, balanced performance  |
// | Gemini 2.5 Flash-Lite    | gemini-2.5-flash-lite  | High-throughput, lowest cost  |
const (
	ModelGemini3FlashPreview = "gemini-3-flash-preview"
	ModelGemini25Pro         = "gemini-2.5-pro"
	ModelGemini25Flash       = "gemini-2.5-flash"
	ModelGemini25FlashLite   = "gemini-2.5-flash-lite"
)

// DefaultModelName is used for every Gemini collaborator unless overridden.
const DefaultModelName = ModelGemini3FlashPreview

// GetModelName returns the Gemini model to use, resolved from:
//  1. GEMINI_MODEL environment variable (if set)
//  2. DefaultModelName
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
