package evo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gapsearch/internal/gapseq"
)

// Status is the snapshot external pollers read while a run is in progress.
type Status struct {
	Generation   int
	MaxGen       int
	BestFitness  float64
	BestSequence gapseq.Sequence
	BestID       string
	Stall        int
	Termination  Termination
	UpdatedAt    time.Time
}

// Render formats s as plain "key: value" lines.
func (s Status) Render() string {
	var b strings.Builder
	state := "running"
	if s.Termination != "" {
		state = "terminated (" + string(s.Termination) + ")"
	}
	fmt.Fprintf(&b, "state: %s\n", state)
	fmt.Fprintf(&b, "generation: %s / %s\n", humanize.Comma(int64(s.Generation)), humanize.Comma(int64(s.MaxGen)))
	fmt.Fprintf(&b, "best_fitness: %s\n", humanize.CommafWithDigits(math.Round(s.BestFitness*100)/100, 2))
	fmt.Fprintf(&b, "best_id: %s\n", s.BestID)
	fmt.Fprintf(&b, "best_length: %d\n", len(s.BestSequence))
	fmt.Fprintf(&b, "best_sequence: %s\n", s.BestSequence)
	fmt.Fprintf(&b, "stall: %d\n", s.Stall)
	fmt.Fprintf(&b, "updated_at: %s\n", s.UpdatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// StatusWriter overwrites a status file so readers only ever observe a
// complete snapshot.
type StatusWriter struct {
	path string
}

func NewStatusWriter(path string) (*StatusWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("status path is required")
	}
	return &StatusWriter{path: path}, nil
}

func (w *StatusWriter) Path() string {
	return w.path
}

func (w *StatusWriter) Write(s Status) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(s.Render()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
