package evo

import (
	"errors"
	"fmt"
	"math/rand"
)

// Selector picks two distinct parent indices from scored members.
type Selector interface {
	Name() string
	SelectParents(rng *rand.Rand, scores []float64) (int, int, error)
}

// RouletteSelector picks parents with probability proportional to their
// score minus the lowest score, so the worst member is never chosen while
// any other member has positive weight.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) SelectParents(rng *rand.Rand, scores []float64) (int, int, error) {
	if rng == nil {
		return 0, 0, errors.New("random source is required")
	}
	if len(scores) < 2 {
		return 0, 0, fmt.Errorf("%w: need at least 2 members to select parents, got %d", ErrInvalidParameters, len(scores))
	}
	weights := shiftedWeights(scores)
	first := spin(rng, weights, -1)
	second := spin(rng, weights, first)
	return first, second, nil
}

// shiftedWeights subtracts the minimum score and scales by the largest
// shifted value so the cumulative sum stays finite.
func shiftedWeights(scores []float64) []float64 {
	lo := scores[argMin(scores, nil)]
	weights := make([]float64, len(scores))
	hi := 0.0
	for i, s := range scores {
		weights[i] = s - lo
		if weights[i] > hi {
			hi = weights[i]
		}
	}
	if hi > 0 {
		for i := range weights {
			weights[i] /= hi
		}
	}
	return weights
}

// spin runs one roulette-wheel draw, never returning exclude. With no
// positive weight left it falls back to a uniform draw.
func spin(rng *rand.Rand, weights []float64, exclude int) int {
	total := 0.0
	for i, w := range weights {
		if i != exclude {
			total += w
		}
	}
	if total <= 0 {
		if exclude < 0 {
			return rng.Intn(len(weights))
		}
		idx := rng.Intn(len(weights) - 1)
		if idx >= exclude {
			idx++
		}
		return idx
	}
	pick := rng.Float64() * total
	acc := 0.0
	last := -1
	for i, w := range weights {
		if i == exclude || w <= 0 {
			continue
		}
		acc += w
		last = i
		if pick < acc {
			return i
		}
	}
	return last
}

// KillWorst removes count lowest scoring members one at a time, taking the
// first minimum on ties. The inputs are not modified.
func KillWorst(population []string, scores []float64, count int) ([]string, []float64) {
	pop := append([]string(nil), population...)
	sc := append([]float64(nil), scores...)
	for i := 0; i < count && len(pop) > 0; i++ {
		worst := argMin(sc, nil)
		pop = append(pop[:worst], pop[worst+1:]...)
		sc = append(sc[:worst], sc[worst+1:]...)
	}
	return pop, sc
}

// KeepBest returns copies of the count highest scoring members in
// descending score order.
func KeepBest(population []string, scores []float64, count int) []string {
	if count > len(population) {
		count = len(population)
	}
	taken := make([]bool, len(scores))
	kept := make([]string, 0, count)
	for i := 0; i < count; i++ {
		best := argMax(scores, taken)
		taken[best] = true
		kept = append(kept, population[best])
	}
	return kept
}

func argMin(values []float64, skip []bool) int {
	idx := -1
	for i, v := range values {
		if skip != nil && skip[i] {
			continue
		}
		if idx < 0 || v < values[idx] {
			idx = i
		}
	}
	return idx
}

func argMax(values []float64, skip []bool) int {
	idx := -1
	for i, v := range values {
		if skip != nil && skip[i] {
			continue
		}
		if idx < 0 || v > values[idx] {
			idx = i
		}
	}
	return idx
}
