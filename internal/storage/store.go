package storage

import (
	"context"

	"playfair/internal/model"
)

// Store persists crack runs and the population snapshots they leave behind.
type Store interface {
	Init(ctx context.Context) error
	SavePopulation(ctx context.Context, population model.Population) error
	GetPopulation(ctx context.Context, id string) (model.Population, bool, error)
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTopKeys(ctx context.Context, runID string, top []model.TopKeyRecord) error
	GetTopKeys(ctx context.Context, runID string) ([]model.TopKeyRecord, bool, error)
}
