package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Population is a snapshot of candidate keys that a later run can continue
// from.
type Population struct {
	VersionedRecord
	ID         string   `json:"id"`
	RunID      string   `json:"run_id,omitempty"`
	Alphabet   string   `json:"alphabet"`
	Keys       []string `json:"keys"`
	Generation int      `json:"generation"`
}

// RunSummary is the outcome of one crack run.
type RunSummary struct {
	VersionedRecord
	RunID          string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
	N              int       `json:"n"`
	Generations    int       `json:"generations"`
	PopulationSize int       `json:"population_size"`
	BestKey        string    `json:"best_key"`
	BestFitness    float64   `json:"best_fitness"`
	Plaintext      string    `json:"plaintext"`
	StoppedEarly   bool      `json:"stopped_early"`
	PopulationID   string    `json:"population_id,omitempty"`
}

type GenerationDiagnostics struct {
	Generation   int     `json:"generation"`
	BestFitness  float64 `json:"best_fitness"`
	MeanFitness  float64 `json:"mean_fitness"`
	StdFitness   float64 `json:"std_fitness"`
	MinFitness   float64 `json:"min_fitness"`
	DistinctKeys int     `json:"distinct_keys"`
	BestKey      string  `json:"best_key"`
}

// TopKeyRecord ranks a member of the final population.
type TopKeyRecord struct {
	Rank    int     `json:"rank"`
	Key     string  `json:"key"`
	Fitness float64 `json:"fitness"`
}
