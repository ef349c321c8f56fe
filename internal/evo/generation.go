package evo

import (
	"errors"
	"fmt"
	"math/rand"
)

// GenerationParams controls how one population becomes the next.
type GenerationParams struct {
	NumChildren  int
	NewRandom    int
	MutationType MutationType
	MutationRate float64
	KillWorst    int
	KeepBest     int
}

func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		NumChildren:  20,
		NewRandom:    5,
		MutationType: MutationSwap,
		MutationRate: 0.1,
		KillWorst:    5,
		KeepBest:     3,
	}
}

// PopulationSize is the member count every generation produces.
func (p GenerationParams) PopulationSize() int {
	return 2 + p.NumChildren + p.NewRandom + p.KeepBest
}

func (p GenerationParams) Validate() error {
	switch {
	case p.NumChildren < 0:
		return fmt.Errorf("%w: num_children=%d", ErrInvalidParameters, p.NumChildren)
	case p.NewRandom < 0:
		return fmt.Errorf("%w: new_random=%d", ErrInvalidParameters, p.NewRandom)
	case p.KillWorst < 0:
		return fmt.Errorf("%w: kill_worst=%d", ErrInvalidParameters, p.KillWorst)
	case p.KeepBest < 0:
		return fmt.Errorf("%w: keep_best=%d", ErrInvalidParameters, p.KeepBest)
	case p.MutationRate < 0 || p.MutationRate > 1:
		return fmt.Errorf("%w: mutation_rate=%v", ErrInvalidParameters, p.MutationRate)
	}
	if !mutationRegistered(string(p.MutationType)) {
		return fmt.Errorf("%w: mutation_type=%q is not registered", ErrInvalidParameters, p.MutationType)
	}
	return nil
}

// Breeder turns a scored population into the next generation. It owns the
// random source for the duration of a call and must not be shared between
// goroutines.
type Breeder struct {
	Rand     *rand.Rand
	Alphabet Alphabet
	Params   GenerationParams
	Selector Selector
}

// Breed returns the next generation. Arguments are validated before any
// work is done and the inputs are never modified.
func (b *Breeder) Breed(population []string, scores []float64) ([]string, error) {
	if b.Rand == nil {
		return nil, errors.New("random source is required")
	}
	if err := b.Params.Validate(); err != nil {
		return nil, err
	}
	if len(population) != len(scores) {
		return nil, fmt.Errorf("%w: population=%d scores=%d", ErrInvalidParameters, len(population), len(scores))
	}
	if remaining := len(population) - b.Params.KillWorst; remaining < 2 {
		return nil, fmt.Errorf("%w: %d members left after killing %d, need at least 2",
			ErrInvalidParameters, remaining, b.Params.KillWorst)
	}
	if b.Params.KeepBest > len(population)-b.Params.KillWorst {
		return nil, fmt.Errorf("%w: keep_best=%d exceeds %d survivors",
			ErrInvalidParameters, b.Params.KeepBest, len(population)-b.Params.KillWorst)
	}
	alphabet := b.alphabet()
	for i, key := range population {
		if err := alphabet.check(key); err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
	}
	selector := b.Selector
	if selector == nil {
		selector = RouletteSelector{}
	}
	op, err := NewMutation(b.Params.MutationType, b.Rand, b.Params.MutationRate)
	if err != nil {
		return nil, err
	}

	survivors, survivorScores := KillWorst(population, scores, b.Params.KillWorst)
	kept := KeepBest(survivors, survivorScores, b.Params.KeepBest)

	i, j, err := selector.SelectParents(b.Rand, survivorScores)
	if err != nil {
		return nil, err
	}
	first, second := survivors[i], survivors[j]

	next := make([]string, 0, b.Params.PopulationSize())
	next = append(next, first, second)
	for c := 0; c < b.Params.NumChildren; c++ {
		child, err := Crossover(b.Rand, alphabet, first, second)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", c, err)
		}
		next = append(next, child)
	}
	for r := 0; r < b.Params.NewRandom; r++ {
		next = append(next, alphabet.RandomKey(b.Rand))
	}

	// Parents stay as selected; everything bred or injected is mutated.
	for m := 2; m < len(next); m++ {
		mutated, err := Mutate(op, alphabet, next[m])
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", m, err)
		}
		next[m] = mutated
	}

	next = append(next, kept...)
	return next, nil
}

func (b *Breeder) alphabet() Alphabet {
	if b.Alphabet == "" {
		return DefaultAlphabet
	}
	return b.Alphabet
}
