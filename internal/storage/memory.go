package storage

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"gapsearch/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]float64
	diagnostics map[string][]model.GenerationDiagnostics
	lineage     map[string][]model.LineageRecord
	comparisons map[string][]model.ComparisonRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.lineage = make(map[string][]model.LineageRecord)
	s.comparisons = make(map[string][]model.ComparisonRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrStoreNotInitialized
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return copyRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, copyRun(run))
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrStoreNotInitialized
	}
	s.history[runID] = slices.Clone(history)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(history), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrStoreNotInitialized
	}
	s.diagnostics[runID] = slices.Clone(diagnostics)
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(diagnostics), true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrStoreNotInitialized
	}
	copied := make([]model.LineageRecord, len(lineage))
	for i, record := range lineage {
		record.ParentIDs = slices.Clone(record.ParentIDs)
		copied[i] = record
	}
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.LineageRecord, len(lineage))
	for i, record := range lineage {
		record.ParentIDs = slices.Clone(record.ParentIDs)
		copied[i] = record
	}
	return copied, true, nil
}

func (s *MemoryStore) SaveComparisons(_ context.Context, runID string, comparisons []model.ComparisonRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrStoreNotInitialized
	}
	s.comparisons[runID] = copyComparisons(comparisons)
	return nil
}

func (s *MemoryStore) GetComparisons(_ context.Context, runID string) ([]model.ComparisonRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comparisons, ok := s.comparisons[runID]
	if !ok {
		return nil, false, nil
	}
	return copyComparisons(comparisons), true, nil
}

func copyRun(run model.RunRecord) model.RunRecord {
	run.BestSequence = slices.Clone(run.BestSequence)
	run.Config = json.RawMessage(slices.Clone([]byte(run.Config)))
	return run
}

func copyComparisons(in []model.ComparisonRecord) []model.ComparisonRecord {
	out := make([]model.ComparisonRecord, len(in))
	for i, record := range in {
		record.ReferenceSequence = slices.Clone(record.ReferenceSequence)
		record.CandidateSequence = slices.Clone(record.CandidateSequence)
		if record.Significant != nil {
			significant := make(map[string]bool, len(record.Significant))
			for k, v := range record.Significant {
				significant[k] = v
			}
			record.Significant = significant
		}
		out[i] = record
	}
	return out
}

func sortRunsNewestFirst(runs []model.RunRecord) {
	slices.SortStableFunc(runs, func(a, b model.RunRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
