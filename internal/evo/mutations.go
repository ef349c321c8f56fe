package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// MaxMutationAttempts bounds how often a mutation is retried when it leaves
// the key unchanged.
const MaxMutationAttempts = 100

// MutationType names a registered mutation operator.
type MutationType string

const (
	MutationSwap      MutationType = "swap"
	MutationInversion MutationType = "inversion"
)

func (m MutationType) String() string {
	return string(m)
}

// ParseMutationType accepts any registered operator name in any case.
// "invert" is kept as an alias for inversion.
func ParseMutationType(name string) (MutationType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "invert" {
		normalized = string(MutationInversion)
	}
	if !mutationRegistered(normalized) {
		return "", fmt.Errorf("%w: unknown mutation type %q (registered: %s)",
			ErrInvalidParameters, name, strings.Join(ListMutations(), ", "))
	}
	return MutationType(normalized), nil
}

// SwapMutation marks each position with probability Rate and shuffles the
// marked letters among the marked positions.
type SwapMutation struct {
	Rand *rand.Rand
	Rate float64
}

func (o *SwapMutation) Name() string {
	return MutationSwap.String()
}

func (o *SwapMutation) Apply(key string) (string, error) {
	if o == nil || o.Rand == nil {
		return "", errors.New("random source is required")
	}
	if o.Rate < 0 || o.Rate > 1 {
		return "", fmt.Errorf("%w: mutation rate %v", ErrInvalidParameters, o.Rate)
	}

	out := []byte(key)
	marked := make([]int, 0, len(out))
	for i := range out {
		if o.Rand.Float64() < o.Rate {
			marked = append(marked, i)
		}
	}
	letters := make([]byte, len(marked))
	for i, pos := range marked {
		letters[i] = out[pos]
	}
	o.Rand.Shuffle(len(letters), func(i, j int) {
		letters[i], letters[j] = letters[j], letters[i]
	})
	for i, pos := range marked {
		out[pos] = letters[i]
	}
	return string(out), nil
}

// InversionMutation reverses the span between two random positions,
// both ends included.
type InversionMutation struct {
	Rand *rand.Rand
}

func (o *InversionMutation) Name() string {
	return MutationInversion.String()
}

func (o *InversionMutation) Apply(key string) (string, error) {
	if o == nil || o.Rand == nil {
		return "", errors.New("random source is required")
	}
	if len(key) == 0 {
		return key, nil
	}
	start := o.Rand.Intn(len(key))
	end := o.Rand.Intn(len(key))
	if start > end {
		start, end = end, start
	}
	out := []byte(key)
	for i, j := start, end; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

// NewMutation builds the operator for typ drawing from rng.
func NewMutation(typ MutationType, rng *rand.Rand, rate float64) (Operator, error) {
	return ResolveMutation(typ.String(), rng, rate)
}

// Mutate applies op until the key changes, then checks the result is still
// a permutation of alphabet.
func Mutate(op Operator, alphabet Alphabet, key string) (string, error) {
	if op == nil {
		return "", errors.New("mutation operator is required")
	}
	for attempt := 0; attempt < MaxMutationAttempts; attempt++ {
		mutated, err := op.Apply(key)
		if err != nil {
			return "", err
		}
		if mutated == key {
			continue
		}
		if err := alphabet.check(mutated); err != nil {
			return "", fmt.Errorf("%s: %w", op.Name(), err)
		}
		return mutated, nil
	}
	return "", fmt.Errorf("%w: %s after %d attempts on %q", ErrIneffectiveMutation, op.Name(), MaxMutationAttempts, key)
}
