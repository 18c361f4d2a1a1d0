package record

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fpang/videointel/internal/domain"
)

// Tolerance is the slack allowed when comparing shot boundaries.
const Tolerance = 1e-3

// SchemaError lists every invariant a record violates.
type SchemaError struct {
	VideoID  string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("record %s failed validation: %s", e.VideoID, strings.Join(e.Problems, "; "))
}

type checker struct {
	problems []string
}

func (c *checker) failf(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Validate checks the record's required fields and its time invariants:
// ordered words, contiguous shots covering [0, duration_s], unique shot IDs,
// the word partition, and one entry per enabled modality on every shot.
func Validate(rec *VideoRecord) error {
	var c checker

	if rec.VideoID == "" {
		c.failf("video_id is required")
	}
	if rec.Filename == "" {
		c.failf("filename is required")
	}
	if rec.Language == "" {
		c.failf("language is required")
	}
	if rec.Processing.Version == "" {
		c.failf("processing.version is required")
	}
	if _, err := time.Parse(time.RFC3339, rec.Processing.CreatedAt); err != nil {
		c.failf("processing.created_at %q is not RFC 3339", rec.Processing.CreatedAt)
	}
	if badFloat(rec.DurationS) || rec.DurationS < 0 {
		c.failf("duration_s %v must be a non-negative number", rec.DurationS)
	}

	checkWords(&c, "transcript", rec.Transcript.Words)
	checkShots(&c, rec)
	checkPartition(&c, rec)
	checkModalities(&c, rec)

	if len(c.problems) > 0 {
		return &SchemaError{VideoID: rec.VideoID, Problems: c.problems}
	}
	return nil
}

func checkWords(c *checker, where string, words []domain.Word) {
	prev := math.Inf(-1)
	for i, w := range words {
		if badFloat(w.StartS) || badFloat(w.EndS) {
			c.failf("%s word %d has a non-finite timestamp", where, i)
			continue
		}
		if w.EndS < w.StartS {
			c.failf("%s word %d (%q) ends before it starts: %v < %v", where, i, w.Text, w.EndS, w.StartS)
		}
		if w.StartS < prev {
			c.failf("%s word %d (%q) starts at %v, before the previous word at %v", where, i, w.Text, w.StartS, prev)
		}
		prev = w.StartS
	}
}

func checkShots(c *checker, rec *VideoRecord) {
	if len(rec.Shots) == 0 {
		c.failf("at least one shot is required")
		return
	}

	seen := make(map[string]bool, len(rec.Shots))
	for i, sh := range rec.Shots {
		if sh.ShotID == "" {
			c.failf("shot %d has no shot_id", i)
		} else if seen[sh.ShotID] {
			c.failf("shot_id %s is used more than once", sh.ShotID)
		}
		seen[sh.ShotID] = true

		if badFloat(sh.StartS) || badFloat(sh.EndS) {
			c.failf("shot %s has a non-finite boundary", sh.ShotID)
			continue
		}
		if sh.StartS < 0 {
			c.failf("shot %s starts at negative time %v", sh.ShotID, sh.StartS)
		}
		switch {
		case sh.EndS < sh.StartS:
			c.failf("shot %s has negative duration: [%v, %v)", sh.ShotID, sh.StartS, sh.EndS)
		case sh.EndS == sh.StartS && !(len(rec.Shots) == 1 && rec.DurationS == 0):
			c.failf("shot %s is empty: [%v, %v)", sh.ShotID, sh.StartS, sh.EndS)
		}
		if i > 0 {
			if prev := rec.Shots[i-1]; math.Abs(prev.EndS-sh.StartS) > Tolerance {
				c.failf("shots %s and %s are not contiguous: %v != %v", prev.ShotID, sh.ShotID, prev.EndS, sh.StartS)
			}
		}
		checkWords(c, "shot "+sh.ShotID, sh.Words)
	}

	if first := rec.Shots[0]; math.Abs(first.StartS) > Tolerance {
		c.failf("first shot starts at %v, not 0", first.StartS)
	}
	if last := rec.Shots[len(rec.Shots)-1]; math.Abs(last.EndS-rec.DurationS) > Tolerance {
		c.failf("last shot ends at %v, not at duration %v", last.EndS, rec.DurationS)
	}
}

func checkPartition(c *checker, rec *VideoRecord) {
	i := 0
	words := rec.Transcript.Words
	for _, sh := range rec.Shots {
		for _, w := range sh.Words {
			if i >= len(words) {
				c.failf("shot %s has word %q beyond the transcript", sh.ShotID, w.Text)
				return
			}
			if w != words[i] {
				c.failf("shot %s word %q does not match transcript word %d (%q)", sh.ShotID, w.Text, i, words[i].Text)
				return
			}
			i++
		}
	}
	if i != len(words) {
		c.failf("shots cover %d of %d transcript words", i, len(words))
	}
}

func checkModalities(c *checker, rec *VideoRecord) {
	enabled := func(mod domain.Modality) bool {
		v, ok := rec.Processing.Models[string(mod)]
		return ok && v != domain.ModelNone
	}
	for _, sh := range rec.Shots {
		present := map[domain.Modality]bool{
			domain.ModalityCaption: sh.Captions != nil,
			domain.ModalityOCR:     sh.OCRText != nil,
			domain.ModalityObjects: sh.Objects != nil,
		}
		for _, mod := range domain.AllModalities {
			switch {
			case enabled(mod) && !present[mod]:
				c.failf("shot %s is missing enabled modality %s", sh.ShotID, mod)
			case !enabled(mod) && present[mod]:
				c.failf("shot %s has an entry for disabled modality %s", sh.ShotID, mod)
			}
		}
	}
}
