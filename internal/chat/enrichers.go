package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/assets"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
)

const keyframeMIMEType = "image/jpeg"

// keyframeCall loads the keyframe and sends it with the request prompt.
// Load failures are already decode errors; API failures become model errors
// unless the call's own deadline or cancellation fired.
func keyframeCall(ctx context.Context, gen Generator, kf enrich.Keyframe, req request, prompt string) (string, error) {
	data, err := kf.Load()
	if err != nil {
		return "", err
	}
	req.parts = []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: keyframeMIMEType, Data: data}},
		{Text: prompt},
	}
	req.jsonOut = true

	text, err := generate(ctx, gen, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", enrich.ModelError(err, isTransient(err))
	}
	return text, nil
}

// rankConfidence is used when the model omits a confidence: 1, 1/2, 1/3...
func rankConfidence(i int) float64 {
	return 1 / float64(i+1)
}

func clampConfidence(v float64) float64 {
	return domain.Round2(min(max(v, 0), 1))
}

// Captioner generates keyframe captions.
type Captioner struct {
	gen   Generator
	model string
}

var _ enrich.Enricher = (*Captioner)(nil)

// NewCaptioner returns a caption enricher backed by model.
func NewCaptioner(gen Generator, model string) *Captioner {
	return &Captioner{gen: gen, model: model}
}

func (c *Captioner) Modality() domain.Modality { return domain.ModalityCaption }
func (c *Captioner) Model() string             { return c.model }

type captionReply struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func (c *Captioner) Infer(ctx context.Context, kf enrich.Keyframe, opts enrich.Options) (enrich.Result, error) {
	n := max(opts.NumCaptions, 1)
	text, err := keyframeCall(ctx, c.gen, kf, request{
		operation: "caption",
		model:     c.model,
		system:    assets.CaptionSystemPrompt,
	}, assets.RenderCaptionRequest(assets.RequestData{NumCaptions: n, Language: opts.Language}))
	if err != nil {
		return enrich.Result{}, err
	}

	replies, err := parseJSON[[]captionReply](text)
	if err != nil {
		return enrich.Result{}, enrich.DecodeError(fmt.Errorf("caption reply: %w", err))
	}

	captions := make([]domain.Caption, 0, n)
	for _, r := range replies {
		t := strings.TrimSpace(r.Text)
		if t == "" {
			continue
		}
		conf := rankConfidence(len(captions))
		if r.Confidence != nil {
			conf = *r.Confidence
		}
		captions = append(captions, domain.Caption{Text: t, Confidence: clampConfidence(conf)})
		if len(captions) == n {
			break
		}
	}
	if len(captions) == 0 {
		return enrich.Result{}, enrich.DecodeError(fmt.Errorf("caption reply for shot %s has no captions", kf.ShotID))
	}
	return enrich.Result{Captions: captions}, nil
}

// ObjectDetector lists objects visible in a keyframe.
type ObjectDetector struct {
	gen   Generator
	model string
}

var _ enrich.Enricher = (*ObjectDetector)(nil)

// NewObjectDetector returns an object detection enricher backed by model.
func NewObjectDetector(gen Generator, model string) *ObjectDetector {
	return &ObjectDetector{gen: gen, model: model}
}

func (d *ObjectDetector) Modality() domain.Modality { return domain.ModalityObjects }
func (d *ObjectDetector) Model() string             { return d.model }

type objectReply struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

func (d *ObjectDetector) Infer(ctx context.Context, kf enrich.Keyframe, opts enrich.Options) (enrich.Result, error) {
	text, err := keyframeCall(ctx, d.gen, kf, request{
		operation: "objects",
		model:     d.model,
		system:    assets.ObjectsSystemPrompt,
	}, assets.RenderObjectsRequest(assets.RequestData{Language: opts.Language}))
	if err != nil {
		return enrich.Result{}, err
	}

	replies, err := parseJSON[[]objectReply](text)
	if err != nil {
		return enrich.Result{}, enrich.DecodeError(fmt.Errorf("objects reply: %w", err))
	}
	return enrich.Result{Objects: mergeObjects(replies)}, nil
}

// mergeObjects normalizes labels, keeps the highest confidence per label,
// and orders by confidence descending then label.
func mergeObjects(replies []objectReply) []domain.DetectedObject {
	best := make(map[string]float64, len(replies))
	for i, r := range replies {
		label := strings.ToLower(strings.TrimSpace(r.Label))
		if label == "" {
			continue
		}
		conf := rankConfidence(i)
		if r.Confidence != nil {
			conf = *r.Confidence
		}
		conf = clampConfidence(conf)
		if prev, ok := best[label]; !ok || conf > prev {
			best[label] = conf
		}
	}

	out := make([]domain.DetectedObject, 0, len(best))
	for label, conf := range best {
		out = append(out, domain.DetectedObject{Label: label, Confidence: conf})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// OCR reads on-screen text with a multimodal model.
type OCR struct {
	gen   Generator
	model string
}

var _ enrich.Enricher = (*OCR)(nil)

// NewOCR returns a model-backed OCR enricher.
func NewOCR(gen Generator, model string) *OCR {
	return &OCR{gen: gen, model: model}
}

func (o *OCR) Modality() domain.Modality { return domain.ModalityOCR }
func (o *OCR) Model() string             { return o.model }

type ocrReply struct {
	Text string `json:"text"`
}

func (o *OCR) Infer(ctx context.Context, kf enrich.Keyframe, opts enrich.Options) (enrich.Result, error) {
	text, err := keyframeCall(ctx, o.gen, kf, request{
		operation: "ocr",
		model:     o.model,
		system:    assets.OCRSystemPrompt,
	}, assets.RenderOCRRequest(assets.RequestData{Language: opts.Language}))
	if err != nil {
		return enrich.Result{}, err
	}

	reply, err := parseJSON[ocrReply](text)
	if err != nil {
		return enrich.Result{}, enrich.DecodeError(fmt.Errorf("ocr reply: %w", err))
	}
	return enrich.Result{Text: strings.TrimSpace(reply.Text)}, nil
}
