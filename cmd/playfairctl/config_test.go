package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"playfair/pkg/playfair"
)

func TestLoadCrackRequestFromJSONConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crack.json")
	payload := map[string]any{
		"ngram_file":     "bigrams.txt",
		"n":              3,
		"cipher_file":    "cipher.txt",
		"seed_word":      "apple",
		"generations":    40,
		"dormancy":       7,
		"num_children":   10,
		"new_random":     4,
		"mutation_type":  "inversion",
		"mutation_rate":  0.25,
		"kill_worst":     3,
		"keep_best":      2,
		"seed":           77,
		"workers":        3,
		"run_id":         "run-a",
		"double_fill":    "z",
		"omit_letter":    "Q",
		"replace_letter": "K",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadCrackRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := playfair.CrackRequest{
		RunID:        "run-a",
		NGramFile:    "bigrams.txt",
		N:            3,
		CipherFile:   "cipher.txt",
		SeedWord:     "apple",
		Generations:  40,
		Dormancy:     7,
		NumChildren:  10,
		NewRandom:    4,
		MutationType: "inversion",
		MutationRate: 0.25,
		KillWorst:    3,
		KeepBest:     2,
		Seed:         77,
		Workers:      3,
		Letters:      playfair.Letters{DoubleFill: 'z', Omit: 'Q', Replace: 'K'},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCrackRequestFromTOMLConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crack.toml")
	config := `ngram_file = "bigrams.txt"
generations = 12
mutation_rate = 0.3
seed = 9
continue_population_id = "pop-1"
`
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadCrackRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := defaultCrackRequest()
	want.NGramFile = "bigrams.txt"
	want.Generations = 12
	want.MutationRate = 0.3
	want.Seed = 9
	want.ContinuePopulationID = "pop-1"
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCrackRequestRejectsBadLetter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crack.json")
	if err := os.WriteFile(path, []byte(`{"omit_letter": "JJ"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadCrackRequestFromConfig(path); err == nil {
		t.Fatal("expected error for multi-letter omit_letter")
	}
}

func TestLoadCrackRequestRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crack.toml")
	if err := os.WriteFile(path, []byte("generations = = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadCrackRequestFromConfig(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOverrideFromFlagsAppliesOnlySetFlags(t *testing.T) {
	req := defaultCrackRequest()
	req.NGramFile = "from-config.txt"
	set := map[string]bool{"gens": true, "s": true, "seed": true}
	flagValue := map[string]any{
		"gens":   25,
		"ngrams": "from-flag.txt",
		"s":      "x",
		"seed":   int64(42),
	}
	if err := overrideFromFlags(&req, set, flagValue); err != nil {
		t.Fatalf("override: %v", err)
	}
	if req.Generations != 25 || req.Seed != 42 || req.Letters.Omit != 'x' {
		t.Fatalf("set flags not applied: %+v", req)
	}
	if req.NGramFile != "from-config.txt" {
		t.Fatalf("unset flag overrode config: %q", req.NGramFile)
	}

	if err := overrideFromFlags(&req, map[string]bool{"r": true}, map[string]any{"r": "7"}); err == nil {
		t.Fatal("expected invalid letter error")
	}
}

func TestParseLetter(t *testing.T) {
	cases := []struct {
		in   string
		want byte
		ok   bool
	}{
		{in: "", want: 0, ok: true},
		{in: "x", want: 'x', ok: true},
		{in: "Q", want: 'Q', ok: true},
		{in: "1"},
		{in: "AB"},
	}
	for _, tc := range cases {
		got, err := parseLetter("-i", tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("parseLetter(%q)=%q,%v want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("parseLetter(%q) expected error", tc.in)
		}
	}
}
