package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"playfair/internal/evo"
	"playfair/pkg/playfair"
)

// defaultCrackRequest carries the flag defaults so a partial parameter file
// still yields a consistent generation shape.
func defaultCrackRequest() playfair.CrackRequest {
	params := evo.DefaultGenerationParams()
	return playfair.CrackRequest{
		N:            2,
		Generations:  100,
		NumChildren:  params.NumChildren,
		NewRandom:    params.NewRandom,
		MutationType: params.MutationType.String(),
		MutationRate: params.MutationRate,
		KillWorst:    params.KillWorst,
		KeepBest:     params.KeepBest,
		Seed:         1,
	}
}

func loadCrackRequestFromConfig(path string) (playfair.CrackRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return playfair.CrackRequest{}, err
	}
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
			return playfair.CrackRequest{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return playfair.CrackRequest{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	req := defaultCrackRequest()
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asString(raw["continue_population_id"]); ok {
		req.ContinuePopulationID = v
	}
	if v, ok := asString(raw["ngram_file"]); ok {
		req.NGramFile = v
	}
	if v, ok := asInt(raw["n"]); ok {
		req.N = v
	}
	if v, ok := asString(raw["cipher_file"]); ok {
		req.CipherFile = v
	}
	if v, ok := asString(raw["seed_word"]); ok {
		req.SeedWord = v
	}
	// population_size is what a run's config.json records.
	if v, ok := asInt(raw["population_size"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asInt(raw["dormancy"]); ok {
		req.Dormancy = v
	}
	if v, ok := asInt(raw["num_children"]); ok {
		req.NumChildren = v
	}
	if v, ok := asInt(raw["new_random"]); ok {
		req.NewRandom = v
	}
	if v, ok := asString(raw["mutation_type"]); ok {
		req.MutationType = v
	}
	if v, ok := asFloat64(raw["mutation_rate"]); ok {
		req.MutationRate = v
	}
	if v, ok := asInt(raw["kill_worst"]); ok {
		req.KillWorst = v
	}
	if v, ok := asInt(raw["keep_best"]); ok {
		req.KeepBest = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}

	letters := []struct {
		key string
		dst *byte
	}{
		{"double_fill", &req.Letters.DoubleFill},
		{"extra_fill", &req.Letters.ExtraFill},
		{"omit_letter", &req.Letters.Omit},
		{"replace_letter", &req.Letters.Replace},
	}
	for _, l := range letters {
		s, ok := asString(raw[l.key])
		if !ok {
			continue
		}
		c, err := parseLetter(l.key, s)
		if err != nil {
			return playfair.CrackRequest{}, err
		}
		*l.dst = c
	}
	return req, nil
}

// overrideFromFlags applies only flags the user set explicitly on top of a
// request loaded from a parameter file.
func overrideFromFlags(req *playfair.CrackRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "continue-pop-id":
			req.ContinuePopulationID = v.(string)
		case "ngrams":
			req.NGramFile = v.(string)
		case "n":
			req.N = v.(int)
		case "cipher-file":
			req.CipherFile = v.(string)
		case "seed-word":
			req.SeedWord = v.(string)
		case "pop":
			req.Population = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "dormancy":
			req.Dormancy = v.(int)
		case "children":
			req.NumChildren = v.(int)
		case "new-random":
			req.NewRandom = v.(int)
		case "mutation":
			req.MutationType = v.(string)
		case "mutation-rate":
			req.MutationRate = v.(float64)
		case "kill-worst":
			req.KillWorst = v.(int)
		case "keep-best":
			req.KeepBest = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "workers":
			req.Workers = v.(int)
		case "i", "p", "s", "r":
			c, err := parseLetter("-"+name, v.(string))
			if err != nil {
				return err
			}
			switch name {
			case "i":
				req.Letters.DoubleFill = c
			case "p":
				req.Letters.ExtraFill = c
			case "s":
				req.Letters.Omit = c
			case "r":
				req.Letters.Replace = c
			}
		}
	}
	return nil
}

// parseLetter accepts an empty value (use the default) or one ASCII letter.
func parseLetter(name, value string) (byte, error) {
	switch len(value) {
	case 0:
		return 0, nil
	case 1:
		c := value[0]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%s must be a single letter, got %q", name, value)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// TOML integers decode as int64, JSON numbers as float64.
func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
