package evo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gapsearch/internal/gapseq"
)

func TestStatusRender(t *testing.T) {
	s := Status{
		Generation:   1200,
		MaxGen:       5000,
		BestFitness:  123456.789,
		BestSequence: gapseq.Sequence{1, 4, 10},
		BestID:       "g1200-i3",
		Stall:        4,
		UpdatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)),
	}
	text := s.Render()
	for _, want := range []string{
		"state: running\n",
		"generation: 1,200 / 5,000\n",
		"best_fitness: 123,456.79\n",
		"best_length: 3\n",
		"best_sequence: [1, 4, 10]\n",
		"stall: 4\n",
		"updated_at: 2024-01-02T02:04:05Z\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("render missing %q:\n%s", want, text)
		}
	}

	s.Termination = TerminationPlateau
	if !strings.HasPrefix(s.Render(), "state: terminated (plateau)\n") {
		t.Fatalf("unexpected terminated state:\n%s", s.Render())
	}
}

func TestStatusWriterReplacesFile(t *testing.T) {
	if _, err := NewStatusWriter(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	path := filepath.Join(t.TempDir(), "status.txt")
	w, err := NewStatusWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for gen := 0; gen < 3; gen++ {
		if err := w.Write(Status{Generation: gen, MaxGen: 3, BestSequence: gapseq.Sequence{1}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "generation: 2 / 3") || strings.Count(string(data), "state:") != 1 {
		t.Fatalf("unexpected status contents:\n%s", data)
	}
}
