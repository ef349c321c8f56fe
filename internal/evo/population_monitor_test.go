package evo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"playfair/internal/cipher"
	"playfair/internal/fitness"
	"playfair/internal/ngram"
)

const referenceText = `It was the best of times, it was the worst of times, it was the age of
wisdom, it was the age of foolishness, it was the epoch of belief, it was the
epoch of incredulity, it was the season of light, it was the season of
darkness, it was the spring of hope, it was the winter of despair.`

func newTestScorer(t *testing.T, workers int) *Scorer {
	t.Helper()

	reference, err := ngram.NewTable(2)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	reference.ScanBytes([]byte(referenceText))
	evaluator, err := fitness.NewEvaluator(reference)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	key, err := cipher.NewKey("APPLE", cipher.DefaultOptions())
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	cipherText, err := key.Encrypt(key.Sanitize([]byte("it was the season of light and the spring of hope")))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	scorer, err := NewScorer(evaluator, cipherText, cipher.DefaultOptions(), workers)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	return scorer
}

func TestScorerPrefersTrueKey(t *testing.T) {
	scorer := newTestScorer(t, 2)
	key, _ := cipher.NewKey("APPLE", cipher.DefaultOptions())

	truth, err := scorer.ScoreKey(key.Square())
	if err != nil {
		t.Fatalf("score true key: %v", err)
	}
	wrong, err := scorer.ScoreKey("ZYXWVUTSRQPONMLKIHGFEDCBA")
	if err != nil {
		t.Fatalf("score wrong key: %v", err)
	}
	if truth <= wrong {
		t.Fatalf("true key score %v should beat %v", truth, wrong)
	}

	scores, err := scorer.ScorePopulation(context.Background(), []string{key.Square(), "ZYXWVUTSRQPONMLKIHGFEDCBA"})
	if err != nil {
		t.Fatalf("score population: %v", err)
	}
	if diff := cmp.Diff([]float64{truth, wrong}, scores); diff != "" {
		t.Fatalf("scores mismatch (-want +got):\n%s", diff)
	}
	if _, err := scorer.ScoreKey("ABC"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}

func TestPopulationMonitorKeepsSizeAndReports(t *testing.T) {
	params := testParams()
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Scorer:      newTestScorer(t, 3),
		Params:      params,
		Generations: 8,
		Seed:        21,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	initial, err := monitor.Seed("")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	result, err := monitor.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Generations != 8 || len(result.BestByGeneration) != 8 || len(result.GenerationDiagnostics) != 8 {
		t.Fatalf("unexpected generation counts: %+v", result)
	}
	if len(result.FinalPopulation) != params.PopulationSize() {
		t.Fatalf("final population=%d want %d", len(result.FinalPopulation), params.PopulationSize())
	}
	for _, member := range result.FinalPopulation {
		if !DefaultAlphabet.Valid(member.Key) {
			t.Fatalf("invalid final member %q", member.Key)
		}
	}
	best := 0.0
	for _, v := range result.BestByGeneration {
		if v > best {
			best = v
		}
	}
	if result.BestFitness != best {
		t.Fatalf("best fitness=%v want max of history %v", result.BestFitness, best)
	}
	if len(result.Plaintext) == 0 || !DefaultAlphabet.Valid(result.BestKey) {
		t.Fatalf("missing best result: key=%q plain=%q", result.BestKey, result.Plaintext)
	}
	for _, diag := range result.GenerationDiagnostics {
		tol := 1e-9 * diag.BestFitness
		if diag.MinFitness > diag.MeanFitness+tol || diag.MeanFitness > diag.BestFitness+tol {
			t.Fatalf("inconsistent diagnostics: %+v", diag)
		}
		if diag.DistinctKeys < 1 || diag.DistinctKeys > params.PopulationSize() {
			t.Fatalf("distinct keys out of range: %+v", diag)
		}
	}
	top := result.TopKeys(3)
	if len(top) != 3 || top[0].Rank != 1 || top[0].Fitness < top[2].Fitness {
		t.Fatalf("unexpected top keys: %+v", top)
	}
}

func TestPopulationMonitorDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) RunResult {
		monitor, err := NewPopulationMonitor(MonitorConfig{
			Scorer:      newTestScorer(t, workers),
			Params:      testParams(),
			Generations: 5,
			Seed:        8,
		})
		if err != nil {
			t.Fatalf("new monitor: %v", err)
		}
		initial, err := monitor.Seed("season")
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		result, err := monitor.Run(context.Background(), initial)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}
	a, b := run(1), run(4)
	if diff := cmp.Diff(a.BestByGeneration, b.BestByGeneration); diff != "" {
		t.Fatalf("history differs across worker counts (-1 +4):\n%s", diff)
	}
	if a.BestKey != b.BestKey {
		t.Fatalf("best key differs: %s vs %s", a.BestKey, b.BestKey)
	}
}

func TestPopulationMonitorDormancyStopsEarly(t *testing.T) {
	params := testParams()
	params.MutationType = MutationInversion
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Scorer:      newTestScorer(t, 2),
		Params:      params,
		Generations: 500,
		Dormancy:    1,
		Seed:        3,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	initial, _ := monitor.Seed("")
	result, err := monitor.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.StoppedEarly || result.Generations >= 500 {
		t.Fatalf("expected dormancy stop, ran %d generations", result.Generations)
	}
}

func TestPopulationMonitorValidation(t *testing.T) {
	scorer := newTestScorer(t, 1)
	if _, err := NewPopulationMonitor(MonitorConfig{Params: testParams(), Generations: 1}); err == nil {
		t.Fatal("expected missing scorer error")
	}
	if _, err := NewPopulationMonitor(MonitorConfig{Scorer: scorer, Params: testParams()}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected generations error, got %v", err)
	}
	monitor, err := NewPopulationMonitor(MonitorConfig{Scorer: scorer, Params: testParams(), Generations: 1})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if _, err := monitor.Run(context.Background(), []string{string(DefaultAlphabet)}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected size mismatch, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	initial, _ := monitor.Seed("")
	if _, err := monitor.Run(ctx, initial); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
