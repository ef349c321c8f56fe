package stats

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"playfair/internal/model"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			N:              2,
			PopulationSize: 13,
			Generations:    3,
			MutationType:   "swap",
			Seed:           1,
			Workers:        2,
		},
		BestByGeneration: []float64{0.5, 0.6, 0.7},
		GenerationDiagnostics: []model.GenerationDiagnostics{
			{Generation: 1, BestFitness: 0.5, BestKey: "K"},
		},
		FinalBestFitness: 0.7,
		BestKey:          "APLEBCDFGHIKMNOQRSTUVWXYZ",
		Plaintext:        "THEDOGIUMPEDOVERTHEMOXON",
		TopKeys:          []model.TopKeyRecord{{Rank: 1, Key: "APLEBCDFGHIKMNOQRSTUVWXYZ", Fitness: 0.7}},
		Population: &model.Population{
			ID:         "pop-1",
			Keys:       []string{"APLEBCDFGHIKMNOQRSTUVWXYZ"},
			Generation: 3,
		},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range exportFiles {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range exportFiles {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(artifacts.Config, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	result, ok, err := ReadRunResult(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read result: ok=%t err=%v", ok, err)
	}
	if result.Plaintext != artifacts.Plaintext || result.BestKey != artifacts.BestKey {
		t.Fatalf("unexpected result: %+v", result)
	}
	top, ok, err := ReadTopKeys(exportedDir, "")
	if err != nil || !ok || len(top) != 1 {
		t.Fatalf("read exported top keys: ok=%t err=%v %+v", ok, err, top)
	}
	population, ok, err := ReadPopulationSnapshot(baseDir, runID)
	if err != nil || !ok || population.ID != "pop-1" || population.Generation != 3 {
		t.Fatalf("read population: ok=%t err=%v %+v", ok, err, population)
	}
	diagnostics, ok, err := ReadGenerationDiagnostics(baseDir, runID)
	if err != nil || !ok || len(diagnostics) != 1 || diagnostics[0].BestKey != "K" {
		t.Fatalf("read diagnostics: ok=%t err=%v %+v", ok, err, diagnostics)
	}
	series, ok, err := ReadFitnessSeries(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read series: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(artifacts.BestByGeneration, series); diff != "" {
		t.Fatalf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestExportMissingRun(t *testing.T) {
	if _, err := ExportRunArtifacts(t.TempDir(), "missing", t.TempDir()); err == nil {
		t.Fatal("expected missing run error")
	}
	if _, err := ExportRunArtifacts(t.TempDir(), "", t.TempDir()); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestRunIndexNewestFirstAndReplace(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2024-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2024-01-03T00:00:00Z"},
		{RunID: "c", CreatedAtUTC: "2024-01-02T00:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2024-01-04T00:00:00Z", FinalBestFitness: 9}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, entry := range index {
		ids = append(ids, entry.RunID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if index[0].FinalBestFitness != 9 {
		t.Fatalf("expected replaced entry, got %+v", index[0])
	}

	empty, err := ListRunIndex(t.TempDir())
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty index, got %+v err=%v", empty, err)
	}
}

func TestSummarizeSeries(t *testing.T) {
	summary := SummarizeSeries("run-1", []float64{1, 3, 2, 4})
	if summary.InitialBest != 1 || summary.FinalBest != 4 || summary.BestMax != 4 || summary.BestMin != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.BestMean != 2.5 || summary.Improvement != 3 {
		t.Fatalf("unexpected mean/improvement: %+v", summary)
	}
	if math.Abs(summary.BestStd-math.Sqrt(5.0/3.0)) > 1e-12 {
		t.Fatalf("std=%v", summary.BestStd)
	}

	perfect := SummarizeSeries("run-2", []float64{1, math.MaxFloat64})
	if math.IsInf(perfect.BestMean, 0) || math.IsNaN(perfect.BestStd) {
		t.Fatalf("summary should stay finite: %+v", perfect)
	}
	if empty := SummarizeSeries("run-3", nil); empty.Generations != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}

func TestWriteRunConfigRejectsMismatch(t *testing.T) {
	if err := WriteRunConfig(t.TempDir(), "a", RunConfig{RunID: "b"}); err == nil {
		t.Fatal("expected run id mismatch error")
	}
	if err := WriteRunConfig(t.TempDir(), " ", RunConfig{}); err == nil {
		t.Fatal("expected run id required error")
	}
}
