package ngram

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Validate checks that every line of r is exactly n letters, one space and a
// decimal count, with no blank lines and no repeated sequence.
func Validate(r io.Reader, n int) error {
	if n < MinN || n > MaxN {
		return fmt.Errorf("%w: n=%d must be in [%d, %d]", ErrInvalidN, n, MinN, MaxN)
	}
	seen := make(map[string]int)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if err := validLine(text, n); err != nil {
			return fmt.Errorf("%w: line %d: %s", ErrFileFormat, line, err)
		}
		seq := strings.ToUpper(text[:n])
		if first, ok := seen[seq]; ok {
			return fmt.Errorf("%w: line %d: duplicate sequence %s (first on line %d)", ErrFileFormat, line, seq, first)
		}
		seen[seq] = line
	}
	return scanner.Err()
}

func ValidateFile(path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Validate(f, n); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	return nil
}

func validLine(text string, n int) error {
	if text == "" {
		return fmt.Errorf("blank line")
	}
	if len(text) < n+2 {
		return fmt.Errorf("line too short")
	}
	if !isLetters(text[:n]) {
		return fmt.Errorf("sequence %q is not %d letters", text[:n], n)
	}
	if text[n] != ' ' {
		return fmt.Errorf("expected single space after sequence")
	}
	for i := n + 1; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return fmt.Errorf("count %q is not a non-negative integer", text[n+1:])
		}
	}
	return nil
}
