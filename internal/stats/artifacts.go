package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"playfair/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig records the parameters a crack run was started with.
type RunConfig struct {
	RunID                string  `json:"run_id"`
	ContinuePopulationID string  `json:"continue_population_id,omitempty"`
	NGramFile            string  `json:"ngram_file"`
	N                    int     `json:"n"`
	CipherFile           string  `json:"cipher_file,omitempty"`
	SeedWord             string  `json:"seed_word,omitempty"`
	PopulationSize       int     `json:"population_size"`
	Generations          int     `json:"generations"`
	Dormancy             int     `json:"dormancy"`
	NumChildren          int     `json:"num_children"`
	NewRandom            int     `json:"new_random"`
	MutationType         string  `json:"mutation_type"`
	MutationRate         float64 `json:"mutation_rate"`
	KillWorst            int     `json:"kill_worst"`
	KeepBest             int     `json:"keep_best"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
	DoubleFill           string  `json:"double_fill"`
	ExtraFill            string  `json:"extra_fill"`
	OmitLetter           string  `json:"omit_letter"`
	ReplaceLetter        string  `json:"replace_letter"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FinalBestFitness      float64                       `json:"final_best_fitness"`
	BestKey               string                        `json:"best_key"`
	Plaintext             string                        `json:"plaintext"`
	StoppedEarly          bool                          `json:"stopped_early"`
	TopKeys               []model.TopKeyRecord          `json:"top_keys"`
	Population            *model.Population             `json:"population,omitempty"`
}

// RunResult is the decrypted outcome stored next to the run history.
type RunResult struct {
	BestKey      string  `json:"best_key"`
	BestFitness  float64 `json:"best_fitness"`
	Plaintext    string  `json:"plaintext"`
	StoppedEarly bool    `json:"stopped_early"`
}

// SeriesSummary condenses a best-by-generation series.
type SeriesSummary struct {
	RunID       string  `json:"run_id"`
	Generations int     `json:"generations"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	BestMax     float64 `json:"best_max"`
	BestMin     float64 `json:"best_min"`
	Improvement float64 `json:"improvement"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	N                int     `json:"n"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	MutationType     string  `json:"mutation_type"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestKey          string  `json:"best_key"`
	PopulationID     string  `json:"population_id,omitempty"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

var exportFiles = []string{
	"config.json",
	"fitness_history.json",
	"top_keys.json",
	"generation_diagnostics.json",
	"result.json",
	"fitness_series.csv",
	"series_summary.json",
	"population.json",
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := WriteRunConfig(baseDir, artifacts.Config.RunID, artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), map[string]any{"best_by_generation": artifacts.BestByGeneration, "final_best_fitness": artifacts.FinalBestFitness}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "top_keys.json"), artifacts.TopKeys); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generation_diagnostics.json"), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	result := RunResult{
		BestKey:      artifacts.BestKey,
		BestFitness:  artifacts.FinalBestFitness,
		Plaintext:    artifacts.Plaintext,
		StoppedEarly: artifacts.StoppedEarly,
	}
	if err := writeJSON(filepath.Join(runDir, "result.json"), result); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "series_summary.json"), SummarizeSeries(artifacts.Config.RunID, artifacts.BestByGeneration)); err != nil {
		return "", err
	}
	if artifacts.Population != nil {
		if err := writeJSON(filepath.Join(runDir, "population.json"), artifacts.Population); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

// SummarizeSeries computes spread statistics over a best-fitness series.
func SummarizeSeries(runID string, series []float64) SeriesSummary {
	summary := SeriesSummary{RunID: runID, Generations: len(series)}
	if len(series) == 0 {
		return summary
	}
	mean, std := stat.MeanStdDev(series, nil)
	summary.InitialBest = series[0]
	summary.FinalBest = series[len(series)-1]
	summary.BestMean = finite(mean)
	summary.BestStd = finite(std)
	summary.BestMax = series[0]
	summary.BestMin = series[0]
	for _, v := range series[1:] {
		summary.BestMax = math.Max(summary.BestMax, v)
		summary.BestMin = math.Min(summary.BestMin, v)
	}
	summary.Improvement = finite(summary.FinalBest - summary.InitialBest)
	return summary
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory into outDir. Files a run never
// wrote are skipped.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range exportFiles {
		err := copyFile(filepath.Join(src, file), filepath.Join(dst, file))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadRunResult(baseDir, runID string) (RunResult, bool, error) {
	var result RunResult
	ok, err := readJSON(filepath.Join(baseDir, runID, "result.json"), &result)
	return result, ok, err
}

func ReadTopKeys(baseDir, runID string) ([]model.TopKeyRecord, bool, error) {
	var top []model.TopKeyRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "top_keys.json"), &top)
	return top, ok, err
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, "generation_diagnostics.json"), &diagnostics)
	return diagnostics, ok, err
}

// ReadPopulationSnapshot loads the final population a run left behind.
func ReadPopulationSnapshot(baseDir, runID string) (model.Population, bool, error) {
	var population model.Population
	ok, err := readJSON(filepath.Join(baseDir, runID, "population.json"), &population)
	return population, ok, err
}

func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	path := filepath.Join(runDir, "fitness_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(best, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "fitness_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, into any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

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
