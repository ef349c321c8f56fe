package evo

import (
	"errors"
	"fmt"
	"math/rand"
)

// Crossover builds a child from two parent keys. Each position of the first
// parent is kept on a fair coin flip; the remaining positions are filled in
// order with the second parent's letters that the child does not hold yet.
func Crossover(rng *rand.Rand, alphabet Alphabet, first, second string) (string, error) {
	if rng == nil {
		return "", errors.New("random source is required")
	}
	if err := alphabet.check(first); err != nil {
		return "", fmt.Errorf("first parent: %w", err)
	}
	if err := alphabet.check(second); err != nil {
		return "", fmt.Errorf("second parent: %w", err)
	}

	child := []byte(first)
	replace := make([]bool, len(child))
	var placed [256]bool
	for i := range child {
		if rng.Intn(2) == 0 {
			placed[child[i]] = true
		} else {
			replace[i] = true
		}
	}

	donor := 0
	for i := range child {
		if !replace[i] {
			continue
		}
		for donor < len(second) && placed[second[donor]] {
			donor++
		}
		if donor == len(second) {
			return "", fmt.Errorf("%w: donor exhausted at position %d", ErrInvalidKey, i)
		}
		child[i] = second[donor]
		placed[second[donor]] = true
		donor++
	}

	out := string(child)
	if err := alphabet.check(out); err != nil {
		return "", err
	}
	return out, nil
}
