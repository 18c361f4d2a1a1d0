// Package align assigns transcript words to shots.
//
// A word belongs to the shot whose half-open interval contains its start
// time. A start exactly on a boundary goes to the later shot, a start after
// the last shot's end goes to the last shot, and a start before the first
// shot goes to the first. A word that straddles a cut is kept whole in the
// shot where it starts. Every word is assigned exactly once, so the
// per-shot slices concatenated in shot order reproduce the input.
package align

import "github.com/fpang/videointel/internal/domain"

// Partition returns, for each shot in order, the words assigned to it.
// words must be ordered by StartS and shots must be ordered and contiguous.
// The walk is a single two-pointer merge over both sequences.
func Partition(words []domain.Word, shots []domain.Shot) [][]domain.Word {
	if len(shots) == 0 {
		return nil
	}
	out := make([][]domain.Word, len(shots))

	s := 0
	from := 0
	for i, w := range words {
		// Advance while the word starts at or past the next shot's start.
		for s+1 < len(shots) && w.StartS >= shots[s+1].StartS {
			out[s] = words[from:i:i]
			from = i
			s++
		}
	}
	out[s] = words[from:len(words):len(words)]

	for i := range out {
		if out[i] == nil {
			out[i] = []domain.Word{}
		}
	}
	return out
}

// Align is Partition keyed by shot ID.
func Align(words []domain.Word, shots []domain.Shot) map[string][]domain.Word {
	parts := Partition(words, shots)
	m := make(map[string][]domain.Word, len(shots))
	for i, sh := range shots {
		m[sh.ID] = parts[i]
	}
	return m
}
