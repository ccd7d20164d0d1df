package model

import (
	"encoding/json"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one finished (or canceled) search.
type RunRecord struct {
	VersionedRecord
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Config       json.RawMessage `json:"config,omitempty"`
	BestID       string          `json:"best_id"`
	BestSequence []int           `json:"best_sequence"`
	BestFitness  float64         `json:"best_fitness"`
	Generations  int             `json:"generations"`
	Termination  string          `json:"termination"`
}

type GenerationDiagnostics struct {
	Generation        int     `json:"generation"`
	BestFitness       float64 `json:"best_fitness"`
	BestEverFitness   float64 `json:"best_ever_fitness"`
	MeanFitness       float64 `json:"mean_fitness"`
	StdDevFitness     float64 `json:"stddev_fitness"`
	WorstFitness      float64 `json:"worst_fitness"`
	Abandoned         int     `json:"abandoned"`
	DistinctSequences int     `json:"distinct_sequences"`
	MeanLength        float64 `json:"mean_length"`
	Stall             int     `json:"stall"`
	Trials            int     `json:"trials"`
	Improved          bool    `json:"improved"`
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
}

type LineageRecord struct {
	VersionedRecord
	CandidateID string   `json:"candidate_id"`
	ParentIDs   []string `json:"parent_ids,omitempty"`
	Generation  int      `json:"generation"`
	Operation   string   `json:"operation"`
	Sequence    string   `json:"sequence"`
}

// ComparisonRecord is one paired reference/candidate comparison at one size.
type ComparisonRecord struct {
	VersionedRecord
	Size              int             `json:"size"`
	Trials            int             `json:"trials"`
	Reference         string          `json:"reference"`
	ReferenceSequence []int           `json:"reference_sequence"`
	ReferenceMean     float64         `json:"reference_mean"`
	Candidate         string          `json:"candidate"`
	CandidateSequence []int           `json:"candidate_sequence"`
	CandidateMean     float64         `json:"candidate_mean"`
	MeanDiff          float64         `json:"mean_diff"`
	T                 float64         `json:"t"`
	P                 float64         `json:"p"`
	Improvement       float64         `json:"improvement_percent"`
	Significant       map[string]bool `json:"significant"`
}
