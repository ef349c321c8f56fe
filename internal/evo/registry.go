package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

var (
	ErrMutationExists   = errors.New("mutation already registered")
	ErrMutationNotFound = errors.New("mutation not found")
)

// MutationFactory builds an operator bound to a run's random source.
type MutationFactory func(rng *rand.Rand, rate float64) Operator

var mutationRegistry = struct {
	mu sync.RWMutex
	m  map[string]MutationFactory
}{
	m: builtinMutations(),
}

func builtinMutations() map[string]MutationFactory {
	return map[string]MutationFactory{
		MutationSwap.String(): func(rng *rand.Rand, rate float64) Operator {
			return &SwapMutation{Rand: rng, Rate: rate}
		},
		MutationInversion.String(): func(rng *rand.Rand, _ float64) Operator {
			return &InversionMutation{Rand: rng}
		},
	}
}

// RegisterMutation adds a named mutation factory.
func RegisterMutation(name string, factory MutationFactory) error {
	if name == "" {
		return errors.New("mutation name is required")
	}
	if factory == nil {
		return errors.New("mutation factory is required")
	}

	mutationRegistry.mu.Lock()
	defer mutationRegistry.mu.Unlock()

	if _, exists := mutationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrMutationExists, name)
	}
	mutationRegistry.m[name] = factory
	return nil
}

// ResolveMutation builds the named operator.
func ResolveMutation(name string, rng *rand.Rand, rate float64) (Operator, error) {
	mutationRegistry.mu.RLock()
	factory, ok := mutationRegistry.m[name]
	mutationRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMutationNotFound, name)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	return factory(rng, rate), nil
}

func mutationRegistered(name string) bool {
	mutationRegistry.mu.RLock()
	defer mutationRegistry.mu.RUnlock()
	_, ok := mutationRegistry.m[name]
	return ok
}

// ListMutations returns the registered operator names in sorted order.
func ListMutations() []string {
	mutationRegistry.mu.RLock()
	defer mutationRegistry.mu.RUnlock()

	names := make([]string, 0, len(mutationRegistry.m))
	for name := range mutationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetMutationRegistryForTests() {
	mutationRegistry.mu.Lock()
	defer mutationRegistry.mu.Unlock()
	mutationRegistry.m = builtinMutations()
}
