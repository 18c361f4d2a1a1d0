package jobs

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewID()
		if !strings.HasPrefix(id, Prefix) {
			t.Fatalf("missing prefix: %s", id)
		}
		if len(id) != len(Prefix)+32 {
			t.Fatalf("unexpected length %d: %s", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"abc":     "job-abc",
		"job-abc": "job-abc",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
