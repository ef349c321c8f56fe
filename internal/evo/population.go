package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"playfair/internal/cipher"
)

var (
	ErrInvalidKey          = errors.New("invalid key")
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrIneffectiveMutation = errors.New("mutation left key unchanged")
)

// Alphabet is the ordered letter set every candidate key permutes.
type Alphabet string

// DefaultAlphabet omits 'J'.
var DefaultAlphabet = NewAlphabet(cipher.DefaultOmit)

func NewAlphabet(omit byte) Alphabet {
	return Alphabet(cipher.Alphabet(omit))
}

func (a Alphabet) contains(c byte) bool {
	for i := 0; i < len(a); i++ {
		if a[i] == c {
			return true
		}
	}
	return false
}

// Valid reports whether key is a permutation of the alphabet.
func (a Alphabet) Valid(key string) bool {
	if len(key) != len(a) {
		return false
	}
	var seen [256]bool
	for i := 0; i < len(key); i++ {
		c := key[i]
		if seen[c] || !a.contains(c) {
			return false
		}
		seen[c] = true
	}
	return true
}

func (a Alphabet) check(key string) error {
	if !a.Valid(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// RandomKey returns a uniformly shuffled alphabet.
func (a Alphabet) RandomKey(rng *rand.Rand) string {
	key := []byte(a)
	rng.Shuffle(len(key), func(i, j int) {
		key[i], key[j] = key[j], key[i]
	})
	return string(key)
}

// SeedPrefix returns the distinct alphabet letters of seed in first-seen
// order, case-folded.
func (a Alphabet) SeedPrefix(seed string) string {
	var used [256]bool
	prefix := make([]byte, 0, len(a))
	for i := 0; i < len(seed); i++ {
		c := seed[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if used[c] || !a.contains(c) {
			continue
		}
		used[c] = true
		prefix = append(prefix, c)
	}
	return string(prefix)
}

// SeedKey fixes the seed prefix and shuffles the remaining letters.
func (a Alphabet) SeedKey(rng *rand.Rand, seed string) string {
	prefix := a.SeedPrefix(seed)
	key := make([]byte, 0, len(a))
	key = append(key, prefix...)
	for i := 0; i < len(a); i++ {
		if !containsByte(prefix, a[i]) {
			key = append(key, a[i])
		}
	}
	suffix := key[len(prefix):]
	rng.Shuffle(len(suffix), func(i, j int) {
		suffix[i], suffix[j] = suffix[j], suffix[i]
	})
	return string(key)
}

// SeedRandom builds size random keys.
func SeedRandom(size int, rng *rand.Rand, alphabet Alphabet) ([]string, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: population size %d", ErrInvalidParameters, size)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	population := make([]string, 0, size)
	for i := 0; i < size; i++ {
		population = append(population, alphabet.RandomKey(rng))
	}
	return population, nil
}

// SeedFromKeyword builds size keys sharing the seed word prefix.
func SeedFromKeyword(size int, rng *rand.Rand, alphabet Alphabet, seed string) ([]string, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: population size %d", ErrInvalidParameters, size)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	population := make([]string, 0, size)
	for i := 0; i < size; i++ {
		population = append(population, alphabet.SeedKey(rng, seed))
	}
	return population, nil
}

// BestMember returns the highest scoring member, first on ties.
func BestMember(population []string, scores []float64) (string, float64, error) {
	if len(population) == 0 {
		return "", 0, fmt.Errorf("%w: empty population", ErrInvalidParameters)
	}
	if len(population) != len(scores) {
		return "", 0, fmt.Errorf("%w: population=%d scores=%d", ErrInvalidParameters, len(population), len(scores))
	}
	best := argMax(scores, nil)
	return population[best], scores[best], nil
}

func containsByte(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}
