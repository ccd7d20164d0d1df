// Package config loads and validates the search configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"gapsearch/internal/corpus"
	"gapsearch/internal/evo"
	"gapsearch/internal/fitness"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/logging"
)

// DefaultMasterSeed is the seed the published corpus files were generated
// with.
const DefaultMasterSeed Seed = 0xC0FFEE1234

// Parent selectors accepted by the selection option.
const (
	SelectionTournament = "tournament"
	SelectionElite      = "elite"
)

// Seed is a 64-bit seed that reads either a decimal or a 0x-prefixed hex
// value.
type Seed uint64

func ParseSeed(text string) (Seed, error) {
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seed %q: %w", text, err)
	}
	return Seed(v), nil
}

func (s Seed) String() string {
	return fmt.Sprintf("0x%X", uint64(s))
}

func (s Seed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Seed) UnmarshalText(text []byte) error {
	v, err := ParseSeed(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Seed) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s *Seed) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: seed must be a scalar", node.Line)
	}
	return s.UnmarshalText([]byte(node.Value))
}

// Config is the full set of options a search run consumes.
type Config struct {
	Population         int     `json:"population" yaml:"population"`
	Generations        int     `json:"generations" yaml:"generations"`
	MutationRate       float64 `json:"mutation_rate" yaml:"mutation_rate"`
	CrossoverRate      float64 `json:"crossover_rate" yaml:"crossover_rate"`
	TournamentSize     int     `json:"tournament_size" yaml:"tournament_size"`
	EliteCount         int     `json:"elite_count" yaml:"elite_count"`
	PlateauGenerations int     `json:"plateau_generations" yaml:"plateau_generations"`
	Selection          string  `json:"selection" yaml:"selection"`

	Targets   []fitness.Target  `json:"targets" yaml:"targets"`
	EarlyStop fitness.EarlyStop `json:"early_stop" yaml:"early_stop"`
	Threads   int               `json:"threads" yaml:"threads"`

	MasterSeed Seed `json:"master_seed" yaml:"master_seed"`
	RunSeed    Seed `json:"run_seed" yaml:"run_seed"`

	MinGaps         int                `json:"min_gaps" yaml:"min_gaps"`
	MaxGaps         int                `json:"max_gaps" yaml:"max_gaps"`
	SeedSequence    []int              `json:"seed_sequence,omitempty" yaml:"seed_sequence"`
	TruncatePolicy  string             `json:"truncate_policy" yaml:"truncate_policy"`
	MutationWeights map[string]float64 `json:"mutation_weights,omitempty" yaml:"mutation_weights"`

	PermsDir       string `json:"perms_dir" yaml:"perms_dir"`
	StatusPath     string `json:"status_path,omitempty" yaml:"status_path"`
	StatusEvery    int    `json:"status_every" yaml:"status_every"`
	MaxCorpusBytes uint64 `json:"max_corpus_bytes" yaml:"max_corpus_bytes"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

func Default() Config {
	limits := gapseq.DefaultLimits()
	return Config{
		Population:         64,
		Generations:        500,
		MutationRate:       0.8,
		CrossoverRate:      0.3,
		TournamentSize:     3,
		EliteCount:         2,
		PlateauGenerations: 50,
		Selection:          SelectionTournament,
		Targets: []fitness.Target{
			{Size: 1000, Weight: 1, Trials: 200},
			{Size: 10000, Weight: 1, Trials: 50},
		},
		EarlyStop:      fitness.DefaultEarlyStop(),
		MasterSeed:     DefaultMasterSeed,
		RunSeed:        1,
		MinGaps:        limits.MinLen,
		MaxGaps:        limits.MaxLen,
		TruncatePolicy: string(gapseq.TruncateLargest),
		PermsDir:       "results/perms",
		StatusEvery:    1,
		MaxCorpusBytes: corpus.DefaultMaxBytes,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Error reports an invalid option or option combination.
type Error struct {
	Option string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Option, e.Reason)
}

func invalid(option, format string, args ...any) *Error {
	return &Error{Option: option, Reason: fmt.Sprintf(format, args...)}
}

// Validate reports every problem found; each is an *Error.
func (c Config) Validate() error {
	var errs []error
	add := func(e *Error) { errs = append(errs, e) }

	if c.Population < 2 {
		add(invalid("population", "must be >= 2, got %d", c.Population))
	}
	if c.Generations < 1 {
		add(invalid("generations", "must be >= 1, got %d", c.Generations))
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		add(invalid("mutation_rate", "must be in [0, 1], got %g", c.MutationRate))
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		add(invalid("crossover_rate", "must be in [0, 1], got %g", c.CrossoverRate))
	}
	if c.TournamentSize < 1 {
		add(invalid("tournament_size", "must be >= 1, got %d", c.TournamentSize))
	}
	if c.EliteCount < 0 || c.EliteCount >= c.Population {
		add(invalid("elite_count", "must be in [0, population=%d), got %d", c.Population, c.EliteCount))
	}
	if c.PlateauGenerations < 0 {
		add(invalid("plateau_generations", "must be >= 0, got %d", c.PlateauGenerations))
	}
	switch c.Selection {
	case SelectionTournament:
	case SelectionElite:
		if c.EliteCount < 1 {
			add(invalid("selection", "elite selection needs elite_count >= 1"))
		}
	default:
		add(invalid("selection", "unknown selector %q (want %s|%s)", c.Selection, SelectionTournament, SelectionElite))
	}

	if len(c.Targets) == 0 {
		add(invalid("targets", "%v", fitness.ErrNoTargets))
	}
	seen := make(map[int]bool, len(c.Targets))
	for i, t := range c.Targets {
		option := fmt.Sprintf("targets[%d]", i)
		if t.Size < 2 {
			add(invalid(option+".size", "must be >= 2, got %d", t.Size))
		}
		if t.Weight <= 0 {
			add(invalid(option+".weight", "must be > 0, got %g", t.Weight))
		}
		if t.Trials < 1 {
			add(invalid(option+".trials", "must be >= 1, got %d", t.Trials))
		}
		if seen[t.Size] {
			add(invalid(option+".size", "duplicate size %d", t.Size))
		}
		seen[t.Size] = true
	}
	if c.EarlyStop.Fraction <= 0 || c.EarlyStop.Fraction > 1 {
		add(invalid("early_stop.fraction", "must be in (0, 1], got %g", c.EarlyStop.Fraction))
	}
	if c.EarlyStop.Margin < 0 {
		add(invalid("early_stop.margin", "must be >= 0, got %g", c.EarlyStop.Margin))
	}
	if c.Threads < 0 {
		add(invalid("threads", "must be >= 0, got %d", c.Threads))
	}

	if c.MinGaps < 1 {
		add(invalid("min_gaps", "must be >= 1, got %d", c.MinGaps))
	}
	if c.MaxGaps < c.MinGaps {
		add(invalid("max_gaps", "must be >= min_gaps=%d, got %d", c.MinGaps, c.MaxGaps))
	}
	if largest := c.largestSize(); largest > 1 && c.MinGaps > largest-1 {
		add(invalid("min_gaps", "needs %d distinct gaps below the largest target N=%d", c.MinGaps, largest))
	}
	if len(c.SeedSequence) > 0 {
		if err := gapseq.ValidateWithin(c.SeedSequence, c.Limits()); err != nil {
			add(invalid("seed_sequence", "%v", err))
		}
	}
	if _, err := gapseq.ParseTruncatePolicy(c.TruncatePolicy); err != nil {
		add(invalid("truncate_policy", "%v", err))
	}
	known := evo.ListOperators()
	for name, w := range c.MutationWeights {
		if !slices.Contains(known, name) {
			add(invalid("mutation_weights", "unknown operator %q", name))
		}
		if w < 0 {
			add(invalid("mutation_weights", "weight for %q must be >= 0", name))
		}
	}

	if c.PermsDir == "" {
		add(invalid("perms_dir", "is required"))
	}
	if c.StatusEvery < 0 {
		add(invalid("status_every", "must be >= 0, got %d", c.StatusEvery))
	}
	if c.MaxCorpusBytes == 0 {
		add(invalid("max_corpus_bytes", "must be > 0"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add(invalid("log_level", "%v", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		add(invalid("log_format", "must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Limits returns the gap-count limits and caps gaps below the largest target
// size. Larger gaps never run in the kernel.
func (c Config) Limits() gapseq.Limits {
	return gapseq.Limits{MinLen: c.MinGaps, MaxLen: c.MaxGaps, MaxGap: c.largestSize() - 1}
}

func (c Config) largestSize() int {
	largest := 0
	for _, t := range c.Targets {
		largest = max(largest, t.Size)
	}
	return largest
}

// Sizes lists the target sizes in configuration order.
func (c Config) Sizes() []int {
	out := make([]int, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = t.Size
	}
	return out
}

// Logging builds the logger configuration.
func (c Config) Logging() logging.Config {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{Level: level, JSON: c.LogFormat == "json"}
}
