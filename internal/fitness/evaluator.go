package fitness

import (
	"errors"
	"fmt"
	"math"

	"playfair/internal/ngram"
)

// PerfectScore is returned when a sample matches the reference exactly and
// the squared-difference sum is zero.
const PerfectScore = math.MaxFloat64

var (
	ErrNGramMismatch = errors.New("n-gram length mismatch")
	ErrEmptyTable    = errors.New("empty frequency table")
)

// Evaluator scores sample n-gram tables against a reference language model.
type Evaluator struct {
	reference *ngram.Table
}

func NewEvaluator(reference *ngram.Table) (*Evaluator, error) {
	if reference == nil || reference.IsEmpty() {
		return nil, fmt.Errorf("%w: reference", ErrEmptyTable)
	}
	return &Evaluator{reference: reference}, nil
}

func (e *Evaluator) N() int {
	return e.reference.N()
}

func (e *Evaluator) Reference() *ngram.Table {
	return e.reference
}

// Score returns 1 / sum((ref(s) - sample(s))^2) over all 26^n sequences s.
func (e *Evaluator) Score(sample *ngram.Table) (float64, error) {
	return Score(e.reference, sample)
}

// MaxFitness is the count-based bound max(count)^2/2. Selection and the
// generation diagnostics use Score only; nothing reports this value.
func (e *Evaluator) MaxFitness(sample *ngram.Table) float64 {
	count := e.reference.Total()
	if sample.Total() > count {
		count = sample.Total()
	}
	c := float64(count)
	return c * c / 2
}

// Score compares two tables of the same n. Sequences are enumerated like an
// odometer from "AA..A", with the first position turning fastest.
func Score(reference, sample *ngram.Table) (float64, error) {
	if reference == nil || reference.IsEmpty() {
		return 0, fmt.Errorf("%w: reference", ErrEmptyTable)
	}
	if sample == nil || sample.IsEmpty() {
		return 0, fmt.Errorf("%w: sample", ErrEmptyTable)
	}
	n := reference.N()
	if sample.N() != n {
		return 0, fmt.Errorf("%w: reference n=%d sample n=%d", ErrNGramMismatch, n, sample.N())
	}

	digits := make([]int, n)
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = 'A'
	}
	total := int(math.Pow(26, float64(n)))
	sum := 0.0
	for i := 0; i < total; i++ {
		diff := reference.FrequencyBytes(seq) - sample.FrequencyBytes(seq)
		sum += diff * diff

		for pos := 0; pos < n; pos++ {
			digits[pos] = (digits[pos] + 1) % 26
			seq[pos] = byte('A' + digits[pos])
			if digits[pos] != 0 {
				break
			}
		}
	}
	if sum == 0 {
		return PerfectScore, nil
	}
	return 1 / sum, nil
}
