package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"playfair/internal/evo"
	"playfair/internal/ngram"
	"playfair/internal/storage"
	"playfair/pkg/playfair"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "encrypt":
		return runCipher(ctx, "encrypt", args[1:])
	case "decrypt":
		return runCipher(ctx, "decrypt", args[1:])
	case "ngrams":
		return runNGrams(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "crack":
		return runCrack(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func newClient(storeKind, dbPath string, logger *zap.Logger) (*playfair.Client, error) {
	return playfair.New(playfair.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
}

// letterFlags registers the four letter choices shared by the cipher
// commands and crack.
type letterFlags struct {
	doubleFill *string
	extraFill  *string
	omit       *string
	replace    *string
}

func addLetterFlags(fs *flag.FlagSet) letterFlags {
	return letterFlags{
		doubleFill: fs.String("i", "", "letter inserted between doubled letters (default X)"),
		extraFill:  fs.String("p", "", "letter padding odd-length text (default Q)"),
		omit:       fs.String("s", "", "letter skipped from the square (default J)"),
		replace:    fs.String("r", "", "letter substituted for the skipped one (default I)"),
	}
}

func (f letterFlags) letters() (playfair.Letters, error) {
	var out playfair.Letters
	var err error
	if out.DoubleFill, err = parseLetter("-i", *f.doubleFill); err != nil {
		return playfair.Letters{}, err
	}
	if out.ExtraFill, err = parseLetter("-p", *f.extraFill); err != nil {
		return playfair.Letters{}, err
	}
	if out.Omit, err = parseLetter("-s", *f.omit); err != nil {
		return playfair.Letters{}, err
	}
	if out.Replace, err = parseLetter("-r", *f.replace); err != nil {
		return playfair.Letters{}, err
	}
	if out.Omit != 0 && out.Replace != 0 && upper(out.Omit) == upper(out.Replace) {
		return playfair.Letters{}, errors.New("replacing letter must differ from the skipped letter")
	}
	return out, nil
}

func runCipher(ctx context.Context, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	keyword := fs.String("k", "", "key word")
	inputFile := fs.String("f", "", "input file (default: remaining arguments)")
	outputFile := fs.String("o", "", "output file (default: stdout)")
	bigrams := fs.Bool("b", false, "separate output bigrams with spaces")
	letters := addLetterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := letters.letters()
	if err != nil {
		return err
	}
	text, err := readInput(*inputFile, fs.Args())
	if err != nil {
		return err
	}

	client, err := newClient("memory", "", nil)
	if err != nil {
		return err
	}
	defer client.Close()

	req := playfair.CipherRequest{Keyword: *keyword, Text: text, Letters: l}
	var result playfair.CipherResult
	if name == "encrypt" {
		result, err = client.Encrypt(ctx, req)
	} else {
		result, err = client.Decrypt(ctx, req)
	}
	if err != nil {
		return err
	}

	out := result.Output
	if *bigrams {
		out = spaceBigrams(out)
	}
	if *outputFile != "" {
		return os.WriteFile(*outputFile, []byte(out+"\n"), 0o644)
	}
	fmt.Println(out)
	return nil
}

func runNGrams(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ngrams", flag.ContinueOnError)
	n := fs.Int("n", 2, "n-gram length (1-13)")
	inputFile := fs.String("i", "", "input text file (default: remaining arguments)")
	outputFile := fs.String("o", "", "save counts to this file instead of printing them")
	jsonOut := fs.Bool("json", false, "emit counts as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inputFile == "" && fs.NArg() == 0 {
		return errors.New("ngrams requires -i or text")
	}

	warnLargeN(os.Stderr, *n)
	req := playfair.NGramRequest{N: *n, InputFile: *inputFile, OutputFile: *outputFile}
	if *inputFile == "" {
		req.Text = []byte(strings.Join(fs.Args(), " "))
	}

	client, err := newClient("memory", "", nil)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.CollectNGrams(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		type entry struct {
			Sequence string `json:"sequence"`
			Count    uint64 `json:"count"`
		}
		payload := struct {
			N       int     `json:"n"`
			Total   uint64  `json:"total"`
			Output  string  `json:"output_file,omitempty"`
			Entries []entry `json:"entries"`
		}{N: summary.N, Total: summary.Total, Output: summary.OutputFile}
		for _, e := range summary.Entries {
			payload.Entries = append(payload.Entries, entry{Sequence: e.Sequence, Count: e.Count})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	if summary.OutputFile == "" {
		for _, e := range summary.Entries {
			fmt.Printf("%s %d\n", e.Sequence, e.Count)
		}
	}
	fmt.Printf("n=%d distinct=%s total=%s", summary.N,
		humanize.Comma(int64(len(summary.Entries))), humanize.Comma(int64(summary.Total)))
	if summary.OutputFile != "" {
		fmt.Printf(" saved=%s", summary.OutputFile)
	}
	fmt.Println()
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	n := fs.Int("n", 2, "n-gram length (1-13)")
	inputFile := fs.String("i", "", "n-gram count file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inputFile == "" {
		return errors.New("validate requires -i")
	}

	client, err := newClient("memory", "", nil)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.ValidateNGrams(ctx, *inputFile, *n); err != nil {
		return err
	}
	fmt.Printf("valid n=%d file=%s\n", *n, *inputFile)
	return nil
}

func runCrack(ctx context.Context, args []string) error {
	defaults := defaultCrackRequest()
	fs := flag.NewFlagSet("crack", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional parameter file (.json or .toml)")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	continuePopID := fs.String("continue-pop-id", "", "continue from persisted population snapshot id")
	ngramFile := fs.String("ngrams", "", "reference n-gram count file")
	n := fs.Int("n", defaults.N, "n-gram length of the reference file")
	cipherFile := fs.String("cipher-file", "", "cipher text file (default: remaining arguments)")
	seedWord := fs.String("seed-word", "", "seed the initial population with this key word prefix")
	population := fs.Int("pop", 0, "population size (0 derives it from the generation shape)")
	generations := fs.Int("gens", defaults.Generations, "generation count")
	dormancy := fs.Int("dormancy", 0, "stop after this many generations without improvement (0 disables)")
	children := fs.Int("children", defaults.NumChildren, "children bred per generation")
	newRandom := fs.Int("new-random", defaults.NewRandom, "random members added per generation")
	mutation := fs.String("mutation", defaults.MutationType, "mutation type: "+strings.Join(evo.ListMutations(), "|"))
	mutationRate := fs.Float64("mutation-rate", defaults.MutationRate, "per-letter swap probability")
	killWorst := fs.Int("kill-worst", defaults.KillWorst, "lowest scoring members removed per generation")
	keepBest := fs.Int("keep-best", defaults.KeepBest, "highest scoring members carried unchanged")
	seed := fs.Int64("seed", defaults.Seed, "rng seed")
	workers := fs.Int("workers", 0, "scoring workers (0 uses GOMAXPROCS)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "playfair.db", "sqlite database path")
	verbose := fs.Bool("verbose", false, "log generation progress")
	jsonOut := fs.Bool("json", false, "emit crack summary as JSON")
	letters := addLetterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	var req playfair.CrackRequest
	if *configPath == "" {
		l, err := letters.letters()
		if err != nil {
			return err
		}
		req = playfair.CrackRequest{
			RunID:                *runID,
			ContinuePopulationID: *continuePopID,
			NGramFile:            *ngramFile,
			N:                    *n,
			CipherFile:           *cipherFile,
			SeedWord:             *seedWord,
			Population:           *population,
			Generations:          *generations,
			Dormancy:             *dormancy,
			NumChildren:          *children,
			NewRandom:            *newRandom,
			MutationType:         *mutation,
			MutationRate:         *mutationRate,
			KillWorst:            *killWorst,
			KeepBest:             *keepBest,
			Seed:                 *seed,
			Workers:              *workers,
			Letters:              l,
		}
	} else {
		loaded, err := loadCrackRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
		flagValue := map[string]any{
			"run-id":          *runID,
			"continue-pop-id": *continuePopID,
			"ngrams":          *ngramFile,
			"n":               *n,
			"cipher-file":     *cipherFile,
			"seed-word":       *seedWord,
			"pop":             *population,
			"gens":            *generations,
			"dormancy":        *dormancy,
			"children":        *children,
			"new-random":      *newRandom,
			"mutation":        *mutation,
			"mutation-rate":   *mutationRate,
			"kill-worst":      *killWorst,
			"keep-best":       *keepBest,
			"seed":            *seed,
			"workers":         *workers,
			"i":               *letters.doubleFill,
			"p":               *letters.extraFill,
			"s":               *letters.omit,
			"r":               *letters.replace,
		}
		if err := overrideFromFlags(&req, setFlags, flagValue); err != nil {
			return err
		}
		if req.Letters.Omit != 0 && req.Letters.Replace != 0 && upper(req.Letters.Omit) == upper(req.Letters.Replace) {
			return errors.New("replacing letter must differ from the skipped letter")
		}
	}
	if req.CipherFile == "" {
		if fs.NArg() == 0 {
			return errors.New("crack requires -cipher-file or cipher text")
		}
		req.CipherText = []byte(strings.Join(fs.Args(), " "))
	}

	warnLargeN(os.Stderr, req.N)
	logger := zap.NewNop()
	if *verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = dev
		defer func() { _ = logger.Sync() }()
	}

	client, err := newClient(*storeKind, *dbPath, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Crack(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		payload := struct {
			RunID        string  `json:"run_id"`
			PopulationID string  `json:"population_id"`
			BestKey      string  `json:"best_key"`
			BestFitness  float64 `json:"best_fitness"`
			Plaintext    string  `json:"plaintext"`
			Generations  int     `json:"generations"`
			StoppedEarly bool    `json:"stopped_early"`
			ArtifactsDir string  `json:"artifacts_dir"`
		}{
			RunID:        summary.RunID,
			PopulationID: summary.PopulationID,
			BestKey:      summary.BestKey,
			BestFitness:  summary.BestFitness,
			Plaintext:    summary.Plaintext,
			Generations:  summary.Generations,
			StoppedEarly: summary.StoppedEarly,
			ArtifactsDir: summary.ArtifactsDir,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Printf("run_id=%s generations=%d stopped_early=%t best_fitness=%.6g\n",
		summary.RunID, summary.Generations, summary.StoppedEarly, summary.BestFitness)
	fmt.Printf("best_key=%s population_id=%s\n", summary.BestKey, summary.PopulationID)
	fmt.Printf("plaintext=%s\n", summary.Plaintext)
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show latest run from run index")
	jsonOut := fs.Bool("json", false, "emit result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient("memory", "", nil)
	if err != nil {
		return err
	}
	defer client.Close()

	report, err := client.Result(ctx, playfair.ResultRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		payload := struct {
			RunID        string  `json:"run_id"`
			BestKey      string  `json:"best_key"`
			BestFitness  float64 `json:"best_fitness"`
			Plaintext    string  `json:"plaintext"`
			StoppedEarly bool    `json:"stopped_early"`
			Config       any     `json:"config"`
		}{
			RunID:        report.RunID,
			BestKey:      report.BestKey,
			BestFitness:  report.BestFitness,
			Plaintext:    report.Plaintext,
			StoppedEarly: report.StoppedEarly,
			Config:       report.Config,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	cfg := report.Config
	fmt.Printf("run_id=%s n=%d pop=%d gens=%d mutation=%s seed=%d\n",
		report.RunID, cfg.N, cfg.PopulationSize, cfg.Generations, cfg.MutationType, cfg.Seed)
	fmt.Printf("best_key=%s best_fitness=%.6g stopped_early=%t\n", report.BestKey, report.BestFitness, report.StoppedEarly)
	fmt.Printf("plaintext=%s\n", report.Plaintext)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient("memory", "", nil)
	if err != nil {
		return err
	}
	defer client.Close()

	items, err := client.Runs(ctx, playfair.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID            string  `json:"run_id"`
			CreatedAtUTC     string  `json:"created_at_utc"`
			N                int     `json:"n"`
			Seed             int64   `json:"seed"`
			PopulationSize   int     `json:"population_size"`
			Generations      int     `json:"generations"`
			MutationType     string  `json:"mutation_type"`
			FinalBestFitness float64 `json:"final_best_fitness"`
			BestKey          string  `json:"best_key"`
			PopulationID     string  `json:"population_id,omitempty"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:            item.RunID,
				CreatedAtUTC:     item.CreatedAtUTC,
				N:                item.N,
				Seed:             item.Seed,
				PopulationSize:   item.Population,
				Generations:      item.Generations,
				MutationType:     item.MutationType,
				FinalBestFitness: item.FinalBestFitness,
				BestKey:          item.BestKey,
				PopulationID:     item.PopulationID,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created=%s n=%d seed=%d pop=%d gens=%d mutation=%s best=%.6g key=%s\n",
			item.RunID,
			createdDisplay(item.CreatedAtUTC),
			item.N,
			item.Seed,
			item.Population,
			item.Generations,
			item.MutationType,
			item.FinalBestFitness,
			item.BestKey,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use latest run from run index")
	limit := fs.Int("limit", 0, "max generations to show (0 = all)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "playfair.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	history, err := client.FitnessHistory(ctx, playfair.FitnessHistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for i, best := range history {
		fmt.Printf("generation=%d best=%.6g\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use latest run from run index")
	limit := fs.Int("limit", 0, "max generations to show (0 = all)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "playfair.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	diagnostics, err := client.Diagnostics(ctx, playfair.DiagnosticsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6g mean=%.6g std=%.6g min=%.6g distinct=%d best_key=%s\n",
			d.Generation, d.BestFitness, d.MeanFitness, d.StdFitness, d.MinFitness, d.DistinctKeys, d.BestKey)
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use latest run from run index")
	limit := fs.Int("limit", 5, "max keys to show (0 = all)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "playfair.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit top keys as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	top, err := client.TopKeys(ctx, playfair.TopKeysRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(top)
	}
	for _, record := range top {
		fmt.Printf("rank=%d key=%s fitness=%.6g\n", record.Rank, record.Key, record.Fitness)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export latest run from run index")
	outDir := fs.String("out", exportsDir, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient("memory", "", nil)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Export(ctx, playfair.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

// warnLargeN notes lengths that are accepted but make scoring enumerate
// 26^n sequences per key.
func warnLargeN(w io.Writer, n int) {
	if n <= ngram.PracticalMaxN {
		return
	}
	fmt.Fprintf(w, "warning: n=%d exceeds %d; scoring compares %s sequences per key\n",
		n, ngram.PracticalMaxN, humanize.Comma(int64(math.Pow(26, float64(n)))))
}

func readInput(path string, args []string) ([]byte, error) {
	if path != "" {
		if len(args) > 0 {
			return nil, errors.New("use either -f or text arguments")
		}
		return os.ReadFile(path)
	}
	if len(args) == 0 {
		return nil, errors.New("no input text")
	}
	return []byte(strings.Join(args, " ")), nil
}

func spaceBigrams(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 2
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

func createdDisplay(createdAtUTC string) string {
	created, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(created)
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: playfairctl <encrypt|decrypt|ngrams|validate|crack|show|runs|fitness|diagnostics|top|export> [flags]", msg)
}
