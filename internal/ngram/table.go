package ngram

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	MinN = 1
	MaxN = 13
	// PracticalMaxN bounds n for fitness scoring, which enumerates 26^n sequences.
	PracticalMaxN = 5
)

var (
	ErrInvalidN   = errors.New("invalid n-gram length")
	ErrFileFormat = errors.New("invalid n-gram file format")
)

// Entry is one persisted sequence count.
type Entry struct {
	Sequence string
	Count    uint64
}

// Table counts fixed-length letter sequences.
type Table struct {
	n      int
	counts map[string]uint64
	total  uint64
}

func NewTable(n int) (*Table, error) {
	if n < MinN || n > MaxN {
		return nil, fmt.Errorf("%w: n=%d must be in [%d, %d]", ErrInvalidN, n, MinN, MaxN)
	}
	return &Table{n: n, counts: make(map[string]uint64)}, nil
}

func (t *Table) N() int {
	return t.n
}

func (t *Table) Total() uint64 {
	return t.total
}

// Len returns the number of distinct sequences observed.
func (t *Table) Len() int {
	return len(t.counts)
}

func (t *Table) IsEmpty() bool {
	return t.total == 0
}

func (t *Table) Clear() {
	clear(t.counts)
	t.total = 0
}

func (t *Table) Count(seq string) uint64 {
	return t.counts[seq]
}

// Frequency returns count/total for seq, or 0 when seq has the wrong length,
// was never observed, or the table is empty.
func (t *Table) Frequency(seq string) float64 {
	if len(seq) != t.n || t.total == 0 {
		return 0
	}
	return float64(t.counts[seq]) / float64(t.total)
}

// FrequencyBytes is Frequency without converting seq to a string first.
func (t *Table) FrequencyBytes(seq []byte) float64 {
	if len(seq) != t.n || t.total == 0 {
		return 0
	}
	return float64(t.counts[string(seq)]) / float64(t.total)
}

// Scan adds every overlapping n-letter window of r. Non-letters are skipped
// and letters are upper-cased. Counts accumulate across calls.
func (t *Table) Scan(r io.Reader) error {
	br := bufio.NewReader(r)
	window := make([]byte, 0, t.n)
	for {
		c, err := br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		window = t.push(window, c)
	}
}

// ScanBytes is Scan over an in-memory buffer.
func (t *Table) ScanBytes(text []byte) {
	window := make([]byte, 0, t.n)
	for _, c := range text {
		window = t.push(window, c)
	}
}

func (t *Table) push(window []byte, c byte) []byte {
	switch {
	case c >= 'a' && c <= 'z':
		c -= 'a' - 'A'
	case c >= 'A' && c <= 'Z':
	default:
		return window
	}
	if len(window) == t.n {
		copy(window, window[1:])
		window = window[:t.n-1]
	}
	window = append(window, c)
	if len(window) == t.n {
		t.counts[string(window)]++
		t.total++
	}
	return window
}

// Entries returns all counts sorted by sequence.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.counts))
	for seq, count := range t.counts {
		out = append(out, Entry{Sequence: seq, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// Load replaces the table contents with the "<LETTERS> <COUNT>" lines of r.
// The table is left untouched on error.
func (t *Table) Load(r io.Reader) error {
	counts := make(map[string]uint64)
	var total uint64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return fmt.Errorf("%w: line %d: expected sequence and count", ErrFileFormat, line)
		}
		seq := strings.ToUpper(fields[0])
		if len(seq) != t.n || !isLetters(seq) {
			return fmt.Errorf("%w: line %d: sequence %q is not %d letters", ErrFileFormat, line, fields[0], t.n)
		}
		count, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: line %d: count %q: %v", ErrFileFormat, line, fields[1], err)
		}
		counts[seq] += count
		total += count
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	t.counts = counts
	t.total = total
	return nil
}

// Write emits the table in the persisted format, sorted by sequence.
func (t *Table) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, entry := range t.Entries() {
		if _, err := fmt.Fprintf(bw, "%s %d\n", entry.Sequence, entry.Count); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := t.Load(f); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (t *Table) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ScanFile counts the n-grams of a text file.
func (t *Table) ScanFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.Scan(f)
}

// ReadTableFile loads a persisted count file into a new table of length n.
func ReadTableFile(path string, n int) (*Table, error) {
	t, err := NewTable(n)
	if err != nil {
		return nil, err
	}
	if err := t.LoadFile(path); err != nil {
		return nil, err
	}
	return t, nil
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
