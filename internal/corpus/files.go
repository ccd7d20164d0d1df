package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Meta is the human-readable sidecar written next to each binary file.
type Meta struct {
	N              int    `json:"N"`
	Trials         int    `json:"trials"`
	MasterSeed     string `json:"master_seed"`
	RNG            string `json:"rng"`
	SeedDerivation string `json:"seed_derivation"`
	GeneratedAt    string `json:"generation_date"`
	Format         string `json:"format"`
}

func BinPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("perm_%d.bin", n))
}

func MetaPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("perm_%d.meta", n))
}

// WriteFile stores ds as perm_<N>.bin plus its perm_<N>.meta sidecar.
func WriteFile(dir string, ds *Dataset, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := BinPath(dir, ds.N)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Encode(f, ds); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	meta := Meta{
		N:              ds.N,
		Trials:         ds.Trials,
		MasterSeed:     fmt.Sprintf("0x%X", ds.MasterSeed),
		RNG:            "xoshiro256** seeded via splitmix64",
		SeedDerivation: "derive_seed(master, N, trial)",
		GeneratedAt:    now.UTC().Format(time.RFC3339),
		Format:         "little-endian header (magic, N, trials, seed) + int32 TRIALS x N",
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(MetaPath(dir, ds.N), append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadFile reads perm_<n>.bin from dir.
func LoadFile(dir string, n int, limits Limits) (*Dataset, error) {
	path := BinPath(dir, n)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DataError{Size: n, Path: path, Reason: ReasonMissing, Err: err}
		}
		return nil, &DataError{Size: n, Path: path, Reason: ReasonIO, Err: err}
	}
	defer f.Close()
	return Decode(f, n, path, limits)
}

// Load reads every requested size. A DataError for one size is recorded on
// the returned corpus and logged; loading continues with the other sizes.
// An AllocationError aborts immediately, and so does a corpus in which no
// size could be loaded.
func Load(dir string, sizes []int, limits Limits, logger *slog.Logger) (*Corpus, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := New()
	var dataErrs []error
	for _, n := range sizes {
		ds, err := LoadFile(dir, n, limits)
		if err != nil {
			var allocErr *AllocationError
			if errors.As(err, &allocErr) {
				return nil, err
			}
			var dataErr *DataError
			if !errors.As(err, &dataErr) {
				return nil, err
			}
			logger.Warn("corpus size unavailable", "size", n, "path", dataErr.Path, "reason", dataErr.Reason, "error", err)
			c.MarkUnavailable(n, err)
			dataErrs = append(dataErrs, err)
			continue
		}
		logger.Debug("corpus size loaded", "size", n, "trials", ds.Trials, "bytes", ds.Bytes())
		c.datasets[n] = ds
	}
	if len(c.datasets) == 0 {
		return nil, fmt.Errorf("%w in %s: %w", ErrNoDatasets, dir, errors.Join(dataErrs...))
	}
	return c, nil
}
