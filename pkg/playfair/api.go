package playfair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playfair/internal/cipher"
	"playfair/internal/evo"
	"playfair/internal/fitness"
	"playfair/internal/model"
	"playfair/internal/ngram"
	"playfair/internal/stats"
	"playfair/internal/storage"
)

const (
	defaultRunsDir     = "runs"
	defaultExportsDir  = "exports"
	defaultDBPath      = "playfair.db"
	defaultGenerations = 100
	defaultN           = 2
	topKeysLimit       = 10
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *zap.Logger
}

type Client struct {
	store storage.Store
	log   *zap.Logger

	runsDir    string
	exportsDir string
}

// Letters overrides the filler and omitted letters. Zero fields keep the
// defaults X, Q, J and I.
type Letters struct {
	DoubleFill byte
	ExtraFill  byte
	Omit       byte
	Replace    byte
}

func (l Letters) options() (cipher.Options, error) {
	return cipher.Options{
		DoubleFill: l.DoubleFill,
		ExtraFill:  l.ExtraFill,
		Omit:       l.Omit,
		Replace:    l.Replace,
	}.Normalize()
}

type CipherRequest struct {
	Keyword string
	Text    []byte
	Letters Letters
}

type CipherResult struct {
	Keyword string
	Square  string
	Input   string
	Output  string
}

type NGramRequest struct {
	N          int
	Text       []byte
	InputFile  string
	OutputFile string
}

type NGramSummary struct {
	N          int
	Total      uint64
	Entries    []ngram.Entry
	OutputFile string
}

type CrackRequest struct {
	RunID                string
	NGramFile            string
	N                    int
	CipherText           []byte
	CipherFile           string
	SeedWord             string
	Population           int
	Generations          int
	Dormancy             int
	NumChildren          int
	NewRandom            int
	MutationType         string
	MutationRate         float64
	KillWorst            int
	KeepBest             int
	Seed                 int64
	Workers              int
	Letters              Letters
	ContinuePopulationID string
}

type CrackSummary struct {
	RunID            string
	ArtifactsDir     string
	PopulationID     string
	BestKey          string
	BestFitness      float64
	Plaintext        string
	Generations      int
	StoppedEarly     bool
	BestByGeneration []float64
}

type ResultRequest struct {
	RunID  string
	Latest bool
}

// RunReport is the final report of a finished crack run.
type RunReport struct {
	RunID        string
	BestKey      string
	BestFitness  float64
	Plaintext    string
	StoppedEarly bool
	Config       stats.RunConfig
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	N                int
	Seed             int64
	Population       int
	Generations      int
	MutationType     string
	FinalBestFitness float64
	BestKey          string
	PopulationID     string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopKeysRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		log:        logger,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Encrypt sanitizes the text and enciphers it under the keyword's square.
func (c *Client) Encrypt(_ context.Context, req CipherRequest) (CipherResult, error) {
	return c.transform(req, (*cipher.Key).Encrypt)
}

// Decrypt sanitizes the text and deciphers it. Filler letters are kept.
func (c *Client) Decrypt(_ context.Context, req CipherRequest) (CipherResult, error) {
	return c.transform(req, (*cipher.Key).Decrypt)
}

func (c *Client) transform(req CipherRequest, apply func(*cipher.Key, []byte) ([]byte, error)) (CipherResult, error) {
	opts, err := req.Letters.options()
	if err != nil {
		return CipherResult{}, err
	}
	key, err := cipher.NewKey(req.Keyword, opts)
	if err != nil {
		return CipherResult{}, err
	}
	input := key.Sanitize(req.Text)
	output, err := apply(key, input)
	if err != nil {
		return CipherResult{}, err
	}
	return CipherResult{
		Keyword: key.Keyword(),
		Square:  key.Square(),
		Input:   string(input),
		Output:  string(output),
	}, nil
}

// CollectNGrams counts n-grams of the input file or text and optionally
// saves them in the persisted count format.
func (c *Client) CollectNGrams(_ context.Context, req NGramRequest) (NGramSummary, error) {
	if req.N == 0 {
		req.N = defaultN
	}
	table, err := ngram.NewTable(req.N)
	if err != nil {
		return NGramSummary{}, err
	}
	c.warnLargeN("collect", req.N)
	switch {
	case req.InputFile != "" && req.Text != nil:
		return NGramSummary{}, errors.New("use either input file or text")
	case req.InputFile != "":
		if err := table.ScanFile(req.InputFile); err != nil {
			return NGramSummary{}, err
		}
	default:
		table.ScanBytes(req.Text)
	}
	if req.OutputFile != "" {
		if err := table.SaveFile(req.OutputFile); err != nil {
			return NGramSummary{}, err
		}
	}
	return NGramSummary{
		N:          req.N,
		Total:      table.Total(),
		Entries:    table.Entries(),
		OutputFile: req.OutputFile,
	}, nil
}

// ValidateNGrams checks a persisted n-gram file without loading it.
func (c *Client) ValidateNGrams(_ context.Context, path string, n int) error {
	if n == 0 {
		n = defaultN
	}
	if n < ngram.MinN || n > ngram.MaxN {
		return fmt.Errorf("%w: %d", ngram.ErrInvalidN, n)
	}
	return ngram.ValidateFile(path, n)
}

// Crack runs the genetic search against the cipher text and records the
// run in the store and the runs directory.
func (c *Client) Crack(ctx context.Context, req CrackRequest) (CrackSummary, error) {
	if req.N == 0 {
		req.N = defaultN
	}
	if req.Generations <= 0 {
		req.Generations = defaultGenerations
	}
	if req.NGramFile == "" {
		return CrackSummary{}, errors.New("n-gram file is required")
	}
	c.warnLargeN("crack", req.N)
	params, err := generationParams(req)
	if err != nil {
		return CrackSummary{}, err
	}
	if req.Population > 0 && req.Population != params.PopulationSize() {
		return CrackSummary{}, fmt.Errorf("%w: population=%d but generation parameters produce %d members",
			evo.ErrInvalidParameters, req.Population, params.PopulationSize())
	}
	opts, err := req.Letters.options()
	if err != nil {
		return CrackSummary{}, err
	}
	cipherText, err := readCipherText(req)
	if err != nil {
		return CrackSummary{}, err
	}
	if err := ngram.ValidateFile(req.NGramFile, req.N); err != nil {
		return CrackSummary{}, fmt.Errorf("reference %s: %w", req.NGramFile, err)
	}
	reference, err := ngram.ReadTableFile(req.NGramFile, req.N)
	if err != nil {
		return CrackSummary{}, err
	}
	evaluator, err := fitness.NewEvaluator(reference)
	if err != nil {
		return CrackSummary{}, err
	}
	scorer, err := evo.NewScorer(evaluator, cipherText, opts, req.Workers)
	if err != nil {
		return CrackSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := c.log.With(zap.String("run_id", runID))

	rng := rand.New(rand.NewSource(req.Seed))
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Scorer:      scorer,
		Params:      params,
		Generations: req.Generations,
		Dormancy:    req.Dormancy,
		Rand:        rng,
		Logger:      log,
	})
	if err != nil {
		return CrackSummary{}, err
	}
	if err := c.store.Init(ctx); err != nil {
		return CrackSummary{}, err
	}

	startGeneration := 0
	var initial []string
	if req.ContinuePopulationID != "" {
		snapshot, err := c.loadPopulation(ctx, req.ContinuePopulationID)
		if err != nil {
			return CrackSummary{}, err
		}
		if snapshot.Alphabet != "" && snapshot.Alphabet != string(scorer.Alphabet()) {
			return CrackSummary{}, fmt.Errorf("%w: population %s uses alphabet %s", evo.ErrInvalidParameters, snapshot.ID, snapshot.Alphabet)
		}
		initial = snapshot.Keys
		startGeneration = snapshot.Generation
		log.Info("continuing population", zap.String("population_id", snapshot.ID), zap.Int("generation", startGeneration))
	} else {
		seedWord := ""
		if req.SeedWord != "" {
			sanitizer, err := cipher.NewKey("", opts)
			if err != nil {
				return CrackSummary{}, err
			}
			seedWord = string(sanitizer.Sanitize([]byte(req.SeedWord)))
		}
		initial, err = monitor.Seed(seedWord)
		if err != nil {
			return CrackSummary{}, err
		}
	}

	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return CrackSummary{}, err
	}

	now := time.Now().UTC()
	population := model.Population{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		RunID:           runID,
		Alphabet:        string(scorer.Alphabet()),
		Keys:            finalKeys(result),
		Generation:      startGeneration + result.Generations,
	}
	top := result.TopKeys(topKeysLimit)
	if err := c.persistRun(ctx, runID, req, params, population, result, top, now); err != nil {
		return CrackSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config:                runConfig(runID, req, params, opts),
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      result.BestFitness,
		BestKey:               result.BestKey,
		Plaintext:             result.Plaintext,
		StoppedEarly:          result.StoppedEarly,
		TopKeys:               top,
		Population:            &population,
	})
	if err != nil {
		return CrackSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:            runID,
		N:                req.N,
		PopulationSize:   params.PopulationSize(),
		Generations:      result.Generations,
		Seed:             req.Seed,
		Workers:          scorer.Workers(),
		MutationType:     params.MutationType.String(),
		FinalBestFitness: result.BestFitness,
		BestKey:          result.BestKey,
		PopulationID:     population.ID,
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
	}); err != nil {
		return CrackSummary{}, err
	}

	return CrackSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		PopulationID:     population.ID,
		BestKey:          result.BestKey,
		BestFitness:      result.BestFitness,
		Plaintext:        result.Plaintext,
		Generations:      result.Generations,
		StoppedEarly:     result.StoppedEarly,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
	}, nil
}

func (c *Client) persistRun(ctx context.Context, runID string, req CrackRequest, params evo.GenerationParams, population model.Population, result evo.RunResult, top []model.TopKeyRecord, now time.Time) error {
	if err := c.store.SavePopulation(ctx, population); err != nil {
		return err
	}
	if err := c.store.SaveRunSummary(ctx, model.RunSummary{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           runID,
		CreatedAt:       now,
		N:               req.N,
		Generations:     result.Generations,
		PopulationSize:  params.PopulationSize(),
		BestKey:         result.BestKey,
		BestFitness:     result.BestFitness,
		Plaintext:       result.Plaintext,
		StoppedEarly:    result.StoppedEarly,
		PopulationID:    population.ID,
	}); err != nil {
		return err
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return err
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, runID, result.GenerationDiagnostics); err != nil {
		return err
	}
	return c.store.SaveTopKeys(ctx, runID, top)
}

// loadPopulation prefers the store and falls back to the snapshot written
// next to the run that produced it.
func (c *Client) loadPopulation(ctx context.Context, id string) (model.Population, error) {
	population, ok, err := c.store.GetPopulation(ctx, id)
	if err != nil {
		return model.Population{}, err
	}
	if ok {
		return population, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return model.Population{}, err
	}
	for _, e := range entries {
		if e.PopulationID != id {
			continue
		}
		population, ok, err := stats.ReadPopulationSnapshot(c.runsDir, e.RunID)
		if err != nil {
			return model.Population{}, err
		}
		if ok {
			return population, nil
		}
	}
	return model.Population{}, fmt.Errorf("population not found: %s", id)
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			N:                e.N,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			MutationType:     e.MutationType,
			FinalBestFitness: e.FinalBestFitness,
			BestKey:          e.BestKey,
			PopulationID:     e.PopulationID,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}

	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessSeries(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}

	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) TopKeys(ctx context.Context, req TopKeysRequest) ([]model.TopKeyRecord, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "top keys")
	if err != nil {
		return nil, err
	}

	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	top, ok, err := c.store.GetTopKeys(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		top, ok, err = stats.ReadTopKeys(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("top keys not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	return append([]model.TopKeyRecord(nil), top...), nil
}

// Result reports the best key, score and plaintext recorded for a run,
// together with the parameters it ran with.
func (c *Client) Result(_ context.Context, req ResultRequest) (RunReport, error) {
	if req.RunID != "" && req.Latest {
		return RunReport{}, errors.New("use either run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "result")
	if err != nil {
		return RunReport{}, err
	}

	result, ok, err := stats.ReadRunResult(c.runsDir, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("result not found for run id: %s", runID)
	}
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("config not found for run id: %s", runID)
	}
	return RunReport{
		RunID:        runID,
		BestKey:      result.BestKey,
		BestFitness:  result.BestFitness,
		Plaintext:    result.Plaintext,
		StoppedEarly: result.StoppedEarly,
		Config:       cfg,
	}, nil
}

// warnLargeN flags n-gram lengths whose scoring cost (26^n lookups per
// member) makes a crack impractical. Such lengths are still accepted.
func (c *Client) warnLargeN(op string, n int) {
	if n <= ngram.PracticalMaxN {
		return
	}
	c.log.Warn("n-gram length above practical limit",
		zap.String("op", op),
		zap.Int("n", n),
		zap.Int("practical_max_n", ngram.PracticalMaxN),
		zap.Float64("sequences_per_score", math.Pow(26, float64(n))),
	)
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", fmt.Errorf("%s requires run id or latest", what)
	}
	return runID, nil
}

func generationParams(req CrackRequest) (evo.GenerationParams, error) {
	params := evo.GenerationParams{
		NumChildren:  req.NumChildren,
		NewRandom:    req.NewRandom,
		MutationRate: req.MutationRate,
		KillWorst:    req.KillWorst,
		KeepBest:     req.KeepBest,
	}
	if params == (evo.GenerationParams{}) {
		params = evo.DefaultGenerationParams()
	}
	params.MutationType = evo.MutationSwap
	if req.MutationType != "" {
		typ, err := evo.ParseMutationType(req.MutationType)
		if err != nil {
			return evo.GenerationParams{}, err
		}
		params.MutationType = typ
	}
	if err := params.Validate(); err != nil {
		return evo.GenerationParams{}, err
	}
	return params, nil
}

func readCipherText(req CrackRequest) ([]byte, error) {
	switch {
	case req.CipherFile != "" && req.CipherText != nil:
		return nil, errors.New("use either cipher file or cipher text")
	case req.CipherFile != "":
		data, err := os.ReadFile(req.CipherFile)
		if err != nil {
			return nil, err
		}
		return data, nil
	case len(bytes.TrimSpace(req.CipherText)) == 0:
		return nil, errors.New("cipher text is required")
	default:
		return req.CipherText, nil
	}
}

func finalKeys(result evo.RunResult) []string {
	keys := make([]string, 0, len(result.FinalPopulation))
	for _, member := range result.FinalPopulation {
		keys = append(keys, member.Key)
	}
	return keys
}

func runConfig(runID string, req CrackRequest, params evo.GenerationParams, opts cipher.Options) stats.RunConfig {
	return stats.RunConfig{
		RunID:                runID,
		ContinuePopulationID: req.ContinuePopulationID,
		NGramFile:            req.NGramFile,
		N:                    req.N,
		CipherFile:           req.CipherFile,
		SeedWord:             req.SeedWord,
		PopulationSize:       params.PopulationSize(),
		Generations:          req.Generations,
		Dormancy:             req.Dormancy,
		NumChildren:          params.NumChildren,
		NewRandom:            params.NewRandom,
		MutationType:         params.MutationType.String(),
		MutationRate:         params.MutationRate,
		KillWorst:            params.KillWorst,
		KeepBest:             params.KeepBest,
		Seed:                 req.Seed,
		Workers:              req.Workers,
		DoubleFill:           string(opts.DoubleFill),
		ExtraFill:            string(opts.ExtraFill),
		OmitLetter:           string(opts.Omit),
		ReplaceLetter:        string(opts.Replace),
	}
}
