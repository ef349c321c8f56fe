package evo

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"playfair/internal/cipher"
	"playfair/internal/fitness"
	"playfair/internal/ngram"
)

// Scorer decrypts cipher text under candidate keys and rates the result
// against a reference model. It is safe for concurrent use.
type Scorer struct {
	evaluator  *fitness.Evaluator
	cipherText []byte
	opts       cipher.Options
	workers    int
	tables     sync.Pool
}

// NewScorer sanitizes cipherText with opts. workers <= 0 uses GOMAXPROCS.
func NewScorer(evaluator *fitness.Evaluator, cipherText []byte, opts cipher.Options, workers int) (*Scorer, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrInvalidParameters)
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	sanitizer, err := cipher.NewKey("", normalized)
	if err != nil {
		return nil, err
	}
	text := sanitizer.Sanitize(cipherText)
	if len(text) < evaluator.N() {
		return nil, fmt.Errorf("%w: cipher text has %d letters, need at least %d", ErrInvalidParameters, len(text), evaluator.N())
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	n := evaluator.N()
	s := &Scorer{
		evaluator:  evaluator,
		cipherText: text,
		opts:       normalized,
		workers:    workers,
	}
	s.tables.New = func() any {
		table, _ := ngram.NewTable(n)
		return table
	}
	return s, nil
}

// Alphabet is the letter set candidate keys must permute.
func (s *Scorer) Alphabet() Alphabet {
	return NewAlphabet(s.opts.Omit)
}

func (s *Scorer) Options() cipher.Options {
	return s.opts
}

func (s *Scorer) Workers() int {
	return s.workers
}

// CipherText returns the sanitized cipher text.
func (s *Scorer) CipherText() []byte {
	return append([]byte(nil), s.cipherText...)
}

// Decrypt returns the cipher text deciphered with key.
func (s *Scorer) Decrypt(key string) ([]byte, error) {
	k, err := cipher.NewKeyFromSquare(key, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k.Decrypt(s.cipherText)
}

// ScoreKey decrypts with key and scores the plaintext n-grams.
func (s *Scorer) ScoreKey(key string) (float64, error) {
	plain, err := s.Decrypt(key)
	if err != nil {
		return 0, err
	}
	table := s.tables.Get().(*ngram.Table)
	defer s.tables.Put(table)

	table.Clear()
	table.ScanBytes(plain)
	return s.evaluator.Score(table)
}

// ScorePopulation scores every member on a bounded worker pool. Scores are
// returned in member order. The first failure cancels remaining work.
func (s *Scorer) ScorePopulation(ctx context.Context, population []string) ([]float64, error) {
	scores := make([]float64, len(population))
	p := pool.New().WithMaxGoroutines(s.workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, key := range population {
		i, key := i, key
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, err := s.ScoreKey(key)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
