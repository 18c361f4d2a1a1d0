package record

import (
	"slices"
	"time"

	"github.com/fpang/videointel/internal/align"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/enrich"
)

// Meta is the job-level input to Assemble.
type Meta struct {
	VideoID   string
	Filename  string
	DurationS float64
	// LanguageHint is used when the transcript reports no language.
	LanguageHint string
	// Modalities lists the enabled enrichment modalities.
	Modalities []domain.Modality
	// Models maps "asr" and each enabled modality to a model identifier.
	Models    map[string]string
	CreatedAt time.Time
}

// Assemble merges the transcript, shots, and per-shot enrichment into a
// validated record. It does not mutate its inputs and, for equal inputs,
// returns equal records. Words are rounded to two decimals before they are
// aligned to shots.
func Assemble(meta Meta, tr domain.Transcript, shots []domain.Shot, enrichments map[string]enrich.ShotEnrichment) (*VideoRecord, error) {
	words := make([]domain.Word, len(tr.Words))
	for i, w := range tr.Words {
		words[i] = domain.Word{Text: w.Text, StartS: domain.Round2(w.StartS), EndS: domain.Round2(w.EndS)}
	}

	lang := tr.Language
	if lang == "" || lang == domain.UnknownLanguage {
		if meta.LanguageHint != "" {
			lang = meta.LanguageHint
		} else {
			lang = domain.UnknownLanguage
		}
	}

	rec := &VideoRecord{
		VideoID:    meta.VideoID,
		Filename:   meta.Filename,
		DurationS:  domain.Round2(meta.DurationS),
		Language:   lang,
		Transcript: Transcript{Text: tr.Text, Words: words},
		Processing: Processing{
			CreatedAt: meta.CreatedAt.UTC().Format(time.RFC3339),
			Models:    modelsMap(meta),
			Version:   SchemaVersion,
		},
	}

	var problems []string
	parts := align.Partition(words, shots)
	rec.Shots = make([]Shot, len(shots))
	for i, sh := range shots {
		out := Shot{
			ShotID:   sh.ID,
			StartS:   sh.StartS,
			EndS:     sh.EndS,
			Keyframe: sh.Keyframe,
			Words:    parts[i],
		}
		se := enrichments[sh.ID]
		for _, mod := range meta.Modalities {
			oc, ok := se[mod]
			if !ok {
				problems = append(problems, "shot "+sh.ID+": no outcome for enabled modality "+string(mod))
				continue
			}
			setModality(&out, mod, oc)
		}
		rec.Shots[i] = out
	}
	if len(problems) > 0 {
		return nil, &SchemaError{VideoID: meta.VideoID, Problems: problems}
	}

	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func modelsMap(meta Meta) map[string]string {
	m := map[string]string{domain.ModelKeyASR: domain.ModelNone}
	if v := meta.Models[domain.ModelKeyASR]; v != "" {
		m[domain.ModelKeyASR] = v
	}
	for _, mod := range domain.AllModalities {
		m[string(mod)] = domain.ModelNone
	}
	for _, mod := range meta.Modalities {
		name := meta.Models[string(mod)]
		if name == "" || name == domain.ModelNone {
			name = "unknown"
		}
		m[string(mod)] = name
	}
	return m
}

func setModality(out *Shot, mod domain.Modality, oc enrich.Outcome) {
	if oc.Err != nil || oc.Result == nil {
		reason, detail := string(enrich.ReasonModelError), "no result"
		if oc.Err != nil {
			reason = string(oc.Err.Reason)
			if oc.Err.Err != nil {
				detail = oc.Err.Err.Error()
			}
		}
		switch mod {
		case domain.ModalityCaption:
			out.Captions = Failed[[]domain.Caption](reason, detail)
		case domain.ModalityOCR:
			out.OCRText = Failed[string](reason, detail)
		case domain.ModalityObjects:
			out.Objects = Failed[[]domain.DetectedObject](reason, detail)
		}
		return
	}

	switch mod {
	case domain.ModalityCaption:
		caps := slices.Clone(oc.Result.Captions)
		if caps == nil {
			caps = []domain.Caption{}
		}
		out.Captions = Available(caps)
	case domain.ModalityOCR:
		out.OCRText = Available(oc.Result.Text)
	case domain.ModalityObjects:
		objs := slices.Clone(oc.Result.Objects)
		if objs == nil {
			objs = []domain.DetectedObject{}
		}
		out.Objects = Available(objs)
	}
}
