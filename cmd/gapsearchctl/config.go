package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gapsearch/internal/config"
	"gapsearch/internal/fitness"
	"gapsearch/internal/gapseq"
	"gapsearch/internal/logging"
	api "gapsearch/pkg/gapsearch"
)

func loadRunConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// configOverrides maps a flag name to the setter applied when that flag was
// given explicitly. Unset flags leave file values alone.
type configOverrides map[string]func(cfg *config.Config) error

func registerConfigFlags(fs *flag.FlagSet) configOverrides {
	def := config.Default()
	o := configOverrides{}

	pop := fs.Int("pop", def.Population, "population size")
	o["pop"] = func(c *config.Config) error { c.Population = *pop; return nil }
	gens := fs.Int("gens", def.Generations, "maximum generation count")
	o["gens"] = func(c *config.Config) error { c.Generations = *gens; return nil }
	mutationRate := fs.Float64("mutation-rate", def.MutationRate, "probability a crossover child is also mutated")
	o["mutation-rate"] = func(c *config.Config) error { c.MutationRate = *mutationRate; return nil }
	crossoverRate := fs.Float64("crossover-rate", def.CrossoverRate, "probability a child is bred by crossover")
	o["crossover-rate"] = func(c *config.Config) error { c.CrossoverRate = *crossoverRate; return nil }
	tournament := fs.Int("tournament", def.TournamentSize, "tournament size for parent selection")
	o["tournament"] = func(c *config.Config) error { c.TournamentSize = *tournament; return nil }
	elite := fs.Int("elite", def.EliteCount, "elites copied unchanged into each generation")
	o["elite"] = func(c *config.Config) error { c.EliteCount = *elite; return nil }
	selection := fs.String("selection", def.Selection, "parent selector: tournament|elite")
	o["selection"] = func(c *config.Config) error { c.Selection = *selection; return nil }
	plateau := fs.Int("plateau", def.PlateauGenerations, "stop after this many generations without improvement (0 disables)")
	o["plateau"] = func(c *config.Config) error { c.PlateauGenerations = *plateau; return nil }

	targets := fs.String("targets", formatTargets(def.Targets), "weighted target sizes as size:weight:trials,...")
	o["targets"] = func(c *config.Config) error {
		parsed, err := parseTargets(*targets)
		if err != nil {
			return err
		}
		c.Targets = parsed
		return nil
	}
	earlyMargin := fs.Float64("early-margin", def.EarlyStop.Margin, "relative margin before a trailing candidate is abandoned")
	o["early-margin"] = func(c *config.Config) error { c.EarlyStop.Margin = *earlyMargin; return nil }
	earlyFraction := fs.Float64("early-fraction", def.EarlyStop.Fraction, "share of trials run before the abandonment check (1 disables)")
	o["early-fraction"] = func(c *config.Config) error { c.EarlyStop.Fraction = *earlyFraction; return nil }
	threads := fs.Int("threads", def.Threads, "sorting goroutines (0 uses GOMAXPROCS)")
	o["threads"] = func(c *config.Config) error { c.Threads = *threads; return nil }

	masterSeed := fs.String("master-seed", def.MasterSeed.String(), "corpus master seed recorded with the run")
	o["master-seed"] = func(c *config.Config) error {
		seed, err := config.ParseSeed(*masterSeed)
		if err != nil {
			return err
		}
		c.MasterSeed = seed
		return nil
	}
	runSeed := fs.String("run-seed", def.RunSeed.String(), "seed of the search's random decisions")
	o["run-seed"] = func(c *config.Config) error {
		seed, err := config.ParseSeed(*runSeed)
		if err != nil {
			return err
		}
		c.RunSeed = seed
		return nil
	}

	minGaps := fs.Int("min-gaps", def.MinGaps, "minimum gap count")
	o["min-gaps"] = func(c *config.Config) error { c.MinGaps = *minGaps; return nil }
	maxGaps := fs.Int("max-gaps", def.MaxGaps, "maximum gap count")
	o["max-gaps"] = func(c *config.Config) error { c.MaxGaps = *maxGaps; return nil }
	seedSequence := fs.String("seed-sequence", "", "initial gap sequence (default: Ciura bounded by the largest target)")
	o["seed-sequence"] = func(c *config.Config) error {
		seq, err := gapseq.Parse(*seedSequence)
		if err != nil {
			return err
		}
		c.SeedSequence = seq
		return nil
	}
	truncate := fs.String("truncate-policy", def.TruncatePolicy, "how over-long children are shortened: largest|interleave")
	o["truncate-policy"] = func(c *config.Config) error { c.TruncatePolicy = *truncate; return nil }
	weights := fs.String("mutation-weights", "", "operator weights as name=weight,... (default: uniform)")
	o["mutation-weights"] = func(c *config.Config) error {
		parsed, err := parseWeights(*weights)
		if err != nil {
			return err
		}
		c.MutationWeights = parsed
		return nil
	}

	permsDir := fs.String("perms-dir", def.PermsDir, "directory holding perm_<N>.bin corpus files")
	o["perms-dir"] = func(c *config.Config) error { c.PermsDir = *permsDir; return nil }
	statusPath := fs.String("status", "", "status file rewritten while the search runs")
	o["status"] = func(c *config.Config) error { c.StatusPath = *statusPath; return nil }
	statusEvery := fs.Int("status-every", def.StatusEvery, "write the status file every n generations")
	o["status-every"] = func(c *config.Config) error { c.StatusEvery = *statusEvery; return nil }
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug|info|warn|error")
	o["log-level"] = func(c *config.Config) error { c.LogLevel = *logLevel; return nil }
	logFormat := fs.String("log-format", def.LogFormat, "log format: text|json")
	o["log-format"] = func(c *config.Config) error { c.LogFormat = *logFormat; return nil }

	return o
}

func (o configOverrides) apply(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		set, ok := o[f.Name]
		if !ok {
			return
		}
		if setErr := set(cfg); setErr != nil {
			err = fmt.Errorf("--%s: %w", f.Name, setErr)
		}
	})
	return err
}

func formatTargets(targets []fitness.Target) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = fmt.Sprintf("%d:%g:%d", t.Size, t.Weight, t.Trials)
	}
	return strings.Join(parts, ",")
}

// parseTargets reads size:weight:trials triples. Weight and trials may be
// omitted and default to 1 and 100.
func parseTargets(raw string) ([]fitness.Target, error) {
	var out []fitness.Target
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fields := strings.Split(item, ":")
		if len(fields) > 3 {
			return nil, fmt.Errorf("target %q: want size:weight:trials", item)
		}
		target := fitness.Target{Weight: 1, Trials: 100}
		size, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("target %q size: %w", item, err)
		}
		target.Size = size
		if len(fields) > 1 {
			if target.Weight, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("target %q weight: %w", item, err)
			}
		}
		if len(fields) > 2 {
			if target.Trials, err = strconv.Atoi(fields[2]); err != nil {
				return nil, fmt.Errorf("target %q trials: %w", item, err)
			}
		}
		out = append(out, target)
	}
	return out, nil
}

func parseWeights(raw string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("mutation weight %q: want name=weight", item)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("mutation weight %q: %w", item, err)
		}
		out[strings.TrimSpace(name)] = weight
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, err := strconv.ParseInt(item, 0, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, int(v))
	}
	return out, nil
}

type corpusFlags struct {
	permsDir *string
	sizes    *string
	trials   *int
	threads  *int
	maxBytes *uint64
	logLevel *string
}

func addCorpusFlags(fs *flag.FlagSet) corpusFlags {
	def := config.Default()
	sizes := make([]string, len(api.DefaultCompareSizes))
	for i, n := range api.DefaultCompareSizes {
		sizes[i] = strconv.Itoa(n)
	}
	return corpusFlags{
		permsDir: fs.String("perms-dir", def.PermsDir, "directory holding perm_<N>.bin corpus files"),
		sizes:    fs.String("sizes", strings.Join(sizes, ","), "comma-separated corpus sizes; missing files are skipped"),
		trials:   fs.Int("trials", 0, "leading trials used per size (0 uses all)"),
		threads:  fs.Int("threads", 0, "sorting goroutines (0 uses GOMAXPROCS)"),
		maxBytes: fs.Uint64("max-corpus-bytes", def.MaxCorpusBytes, "largest corpus payload loaded per size"),
		logLevel: fs.String("log-level", "warn", "log level: debug|info|warn|error"),
	}
}

func (f corpusFlags) request() (api.CorpusRequest, error) {
	sizes, err := parseIntList(*f.sizes)
	if err != nil {
		return api.CorpusRequest{}, fmt.Errorf("sizes: %w", err)
	}
	if *f.trials < 0 {
		return api.CorpusRequest{}, fmt.Errorf("trials must be >= 0")
	}
	if _, err := logging.ParseLevel(*f.logLevel); err != nil {
		return api.CorpusRequest{}, err
	}
	return api.CorpusRequest{
		PermsDir:       *f.permsDir,
		Sizes:          sizes,
		Trials:         *f.trials,
		Threads:        *f.threads,
		MaxCorpusBytes: *f.maxBytes,
	}, nil
}

func (f corpusFlags) logger() *slog.Logger {
	level, _ := logging.ParseLevel(*f.logLevel)
	return logging.New(logging.Config{Level: level, Writer: os.Stderr, Component: "gapsearchctl"})
}
