// Package assets embeds the prompt templates sent to Gemini.
//
// System prompts are static. Request prompts are text/template files
// rendered with RequestData for each call.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static system prompts ---

//go:embed prompts/caption-system.txt
var CaptionSystemPrompt string

//go:embed prompts/objects-system.txt
var ObjectsSystemPrompt string

//go:embed prompts/ocr-system.txt
var OCRSystemPrompt string

//go:embed prompts/transcribe-system.txt
var TranscribeSystemPrompt string

// --- Request templates ---

//go:embed prompts/caption-request.txt
var captionRequestTemplate string

//go:embed prompts/objects-request.txt
var objectsRequestTemplate string

//go:embed prompts/ocr-request.txt
var ocrRequestTemplate string

//go:embed prompts/transcribe-request.txt
var transcribeRequestTemplate string

// template.Must panics on malformed templates at startup rather than at call time.
var (
	captionRequestTmpl    = template.Must(template.New("caption").Parse(captionRequestTemplate))
	objectsRequestTmpl    = template.Must(template.New("objects").Parse(objectsRequestTemplate))
	ocrRequestTmpl        = template.Must(template.New("ocr").Parse(ocrRequestTemplate))
	transcribeRequestTmpl = template.Must(template.New("transcribe").Parse(transcribeRequestTemplate))
)

// RequestData holds the per-call values injected into request templates.
type RequestData struct {
	NumCaptions int
	// Language is an ISO 639-1 hint; empty when unknown.
	Language string
}

// RenderCaptionRequest renders the caption request.
func RenderCaptionRequest(d RequestData) string {
	if d.NumCaptions < 1 {
		d.NumCaptions = 1
	}
	return render(captionRequestTmpl, d)
}

// RenderObjectsRequest renders the object detection request.
func RenderObjectsRequest(d RequestData) string { return render(objectsRequestTmpl, d) }

// RenderOCRRequest renders the OCR request.
func RenderOCRRequest(d RequestData) string { return render(ocrRequestTmpl, d) }

// RenderTranscribeRequest renders the transcription request.
func RenderTranscribeRequest(d RequestData) string { return render(transcribeRequestTmpl, d) }

func render(tmpl *template.Template, d RequestData) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; return
	// whatever was rendered.
	_ = tmpl.Execute(&buf, d)
	return buf.String()
}
