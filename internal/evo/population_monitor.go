package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"playfair/internal/fitness"
	"playfair/internal/model"
)

type ScoredKey struct {
	Key     string  `json:"key"`
	Fitness float64 `json:"fitness"`
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []ScoredKey
	BestKey               string
	BestFitness           float64
	Plaintext             string
	Generations           int
	StoppedEarly          bool
}

// TopKeys ranks the final population, best first.
func (r RunResult) TopKeys(limit int) []model.TopKeyRecord {
	ranked := append([]ScoredKey(nil), r.FinalPopulation...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	top := make([]model.TopKeyRecord, 0, len(ranked))
	for i, item := range ranked {
		top = append(top, model.TopKeyRecord{Rank: i + 1, Key: item.Key, Fitness: item.Fitness})
	}
	return top
}

type MonitorConfig struct {
	Scorer      *Scorer
	Params      GenerationParams
	Selector    Selector
	Generations int
	// Dormancy stops the run once the best score has not improved for this
	// many generations. Zero disables it.
	Dormancy int
	Seed     int64
	// Rand overrides the generator derived from Seed.
	Rand   *rand.Rand
	Logger *zap.Logger
}

type PopulationMonitor struct {
	cfg     MonitorConfig
	breeder *Breeder
	log     *zap.Logger
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("%w: generations must be > 0", ErrInvalidParameters)
	}
	if cfg.Dormancy < 0 {
		return nil, fmt.Errorf("%w: dormancy must be >= 0", ErrInvalidParameters)
	}
	if cfg.Params.KillWorst > cfg.Params.PopulationSize()-2 {
		return nil, fmt.Errorf("%w: kill_worst=%d leaves fewer than 2 of %d members",
			ErrInvalidParameters, cfg.Params.KillWorst, cfg.Params.PopulationSize())
	}
	if cfg.Params.KeepBest > cfg.Params.PopulationSize()-cfg.Params.KillWorst {
		return nil, fmt.Errorf("%w: keep_best=%d exceeds survivors", ErrInvalidParameters, cfg.Params.KeepBest)
	}
	if cfg.Selector == nil {
		cfg.Selector = RouletteSelector{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(cfg.Seed))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &PopulationMonitor{
		cfg: cfg,
		breeder: &Breeder{
			Rand:     cfg.Rand,
			Alphabet: cfg.Scorer.Alphabet(),
			Params:   cfg.Params,
			Selector: cfg.Selector,
		},
		log: cfg.Logger,
	}, nil
}

// Seed builds an initial population of the configured size. A non-empty
// seed word fixes the key prefix of every member.
func (m *PopulationMonitor) Seed(seedWord string) ([]string, error) {
	size := m.cfg.Params.PopulationSize()
	if seedWord == "" {
		return SeedRandom(size, m.cfg.Rand, m.breeder.Alphabet)
	}
	return SeedFromKeyword(size, m.cfg.Rand, m.breeder.Alphabet, seedWord)
}

func (m *PopulationMonitor) Run(ctx context.Context, initial []string) (RunResult, error) {
	if want := m.cfg.Params.PopulationSize(); len(initial) != want {
		return RunResult{}, fmt.Errorf("%w: initial population mismatch: got=%d want=%d", ErrInvalidParameters, len(initial), want)
	}
	for i, key := range initial {
		if err := m.breeder.Alphabet.check(key); err != nil {
			return RunResult{}, fmt.Errorf("initial member %d: %w", i, err)
		}
	}

	population := append([]string(nil), initial...)
	bestHistory := make([]float64, 0, m.cfg.Generations)
	diagnostics := make([]model.GenerationDiagnostics, 0, m.cfg.Generations)

	var (
		scores       []float64
		bestKey      string
		bestFitness  = math.Inf(-1)
		idle         int
		stoppedEarly bool
		completed    int
	)
	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		var err error
		scores, err = m.cfg.Scorer.ScorePopulation(ctx, population)
		if err != nil {
			return RunResult{}, err
		}
		completed = gen + 1

		genBest, genFitness, err := BestMember(population, scores)
		if err != nil {
			return RunResult{}, err
		}
		bestHistory = append(bestHistory, genFitness)
		diag := summarizeGeneration(population, scores, gen+1)
		diagnostics = append(diagnostics, diag)
		m.log.Debug("generation scored",
			zap.Int("generation", gen+1),
			zap.Float64("best_fitness", genFitness),
			zap.Float64("mean_fitness", diag.MeanFitness),
			zap.String("best_key", genBest),
		)

		if genFitness > bestFitness {
			bestKey, bestFitness = genBest, genFitness
			idle = 0
		} else {
			idle++
		}
		if genFitness == fitness.PerfectScore {
			stoppedEarly = gen+1 < m.cfg.Generations
			break
		}
		if m.cfg.Dormancy > 0 && idle >= m.cfg.Dormancy {
			stoppedEarly = gen+1 < m.cfg.Generations
			m.log.Info("best fitness dormant", zap.Int("generation", gen+1), zap.Int("dormancy", m.cfg.Dormancy))
			break
		}
		if gen+1 == m.cfg.Generations {
			break
		}

		population, err = m.breeder.Breed(population, scores)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen+1, err)
		}
	}

	plain, err := m.cfg.Scorer.Decrypt(bestKey)
	if err != nil {
		return RunResult{}, err
	}
	final := make([]ScoredKey, len(population))
	for i := range population {
		final[i] = ScoredKey{Key: population[i], Fitness: scores[i]}
	}
	m.log.Info("run finished",
		zap.Int("generations", completed),
		zap.Bool("stopped_early", stoppedEarly),
		zap.Float64("best_fitness", bestFitness),
		zap.String("best_key", bestKey),
	)

	return RunResult{
		BestByGeneration:      bestHistory,
		GenerationDiagnostics: diagnostics,
		FinalPopulation:       final,
		BestKey:               bestKey,
		BestFitness:           bestFitness,
		Plaintext:             string(plain),
		Generations:           completed,
		StoppedEarly:          stoppedEarly,
	}, nil
}

func summarizeGeneration(population []string, scores []float64, generation int) model.GenerationDiagnostics {
	if len(scores) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	best := argMax(scores, nil)
	worst := argMin(scores, nil)
	mean, std := stat.MeanStdDev(scores, nil)
	distinct := make(map[string]struct{}, len(population))
	for _, key := range population {
		distinct[key] = struct{}{}
	}

	return model.GenerationDiagnostics{
		Generation:   generation,
		BestFitness:  scores[best],
		MeanFitness:  finite(mean),
		StdFitness:   finite(std),
		MinFitness:   scores[worst],
		DistinctKeys: len(distinct),
		BestKey:      population[best],
	}
}

// finite keeps diagnostics JSON-encodable when a perfect score overflows
// the moments.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}
