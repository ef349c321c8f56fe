package cipher

import (
	"errors"
	"fmt"
)

const (
	DefaultDoubleFill byte = 'X'
	DefaultExtraFill  byte = 'Q'
	DefaultOmit       byte = 'J'
	DefaultReplace    byte = 'I'

	// SquareSize is the number of letters in a Playfair square.
	SquareSize = 25
	side       = 5
)

var (
	ErrInvalidOption    = errors.New("invalid key option")
	ErrInvalidCharacter = errors.New("invalid character")
	ErrInvalidSquare    = errors.New("invalid square")
)

// Options selects the filler and omitted letters of a Key. Zero fields take
// the package defaults.
type Options struct {
	DoubleFill byte
	ExtraFill  byte
	Omit       byte
	Replace    byte
}

func DefaultOptions() Options {
	return Options{
		DoubleFill: DefaultDoubleFill,
		ExtraFill:  DefaultExtraFill,
		Omit:       DefaultOmit,
		Replace:    DefaultReplace,
	}
}

// Normalize upper-cases every letter and fills defaults. A replace letter
// equal to the omitted letter falls back to 'I' (or 'J' when 'I' itself is
// omitted). Fill letters equal to the omitted letter are mapped to the
// replace letter so they always sit in the square.
func (o Options) Normalize() (Options, error) {
	out := DefaultOptions()
	fields := []struct {
		name string
		in   byte
		out  *byte
	}{
		{"double fill", o.DoubleFill, &out.DoubleFill},
		{"extra fill", o.ExtraFill, &out.ExtraFill},
		{"omit letter", o.Omit, &out.Omit},
		{"replace letter", o.Replace, &out.Replace},
	}
	for _, f := range fields {
		if f.in == 0 {
			continue
		}
		letter, ok := upper(f.in)
		if !ok {
			return Options{}, fmt.Errorf("%w: %s %q is not a letter", ErrInvalidOption, f.name, f.in)
		}
		*f.out = letter
	}
	if out.Replace == out.Omit {
		out.Replace = DefaultReplace
		if out.Omit == DefaultReplace {
			out.Replace = DefaultOmit
		}
	}
	if out.DoubleFill == out.Omit {
		out.DoubleFill = out.Replace
	}
	if out.ExtraFill == out.Omit {
		out.ExtraFill = out.Replace
	}
	return out, nil
}

// Alphabet returns the 25 letters A..Z without omit, in order.
func Alphabet(omit byte) string {
	letters := make([]byte, 0, SquareSize)
	for c := byte('A'); c <= 'Z'; c++ {
		if c == omit {
			continue
		}
		letters = append(letters, c)
	}
	return string(letters)
}

// Key is an immutable Playfair square built from a keyword.
type Key struct {
	keyword  string
	opts     Options
	square   [SquareSize]byte
	position [26]int8
}

// NewKey builds the square for keyword: sanitized keyword letters first in
// reading order, then the rest of the alphabet.
func NewKey(keyword string, opts Options) (*Key, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	k := &Key{keyword: keyword, opts: normalized}
	k.generate()
	return k, nil
}

// NewKeyFromSquare uses square verbatim as the 5x5 grid. The square must be
// a permutation of the alphabet selected by opts.
func NewKeyFromSquare(square string, opts Options) (*Key, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if len(square) != SquareSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSquare, len(square))
	}
	k := &Key{keyword: square, opts: normalized}
	for i := range k.position {
		k.position[i] = -1
	}
	for i := 0; i < SquareSize; i++ {
		c := square[i]
		if c < 'A' || c > 'Z' || c == normalized.Omit {
			return nil, fmt.Errorf("%w: letter %q at %d", ErrInvalidSquare, c, i)
		}
		if k.position[c-'A'] >= 0 {
			return nil, fmt.Errorf("%w: duplicate letter %q", ErrInvalidSquare, c)
		}
		k.position[c-'A'] = int8(i)
		k.square[i] = c
	}
	return k, nil
}

func (k *Key) generate() {
	for i := range k.position {
		k.position[i] = -1
	}
	placed := 0
	place := func(c byte) {
		if k.position[c-'A'] >= 0 {
			return
		}
		k.position[c-'A'] = int8(placed)
		k.square[placed] = c
		placed++
	}
	for _, c := range k.Sanitize([]byte(k.keyword)) {
		place(c)
	}
	for c := byte('A'); c <= 'Z'; c++ {
		if c == k.opts.Omit {
			continue
		}
		place(c)
	}
}

func (k *Key) Keyword() string {
	return k.keyword
}

func (k *Key) Options() Options {
	return k.opts
}

// Square returns the grid in row-major order.
func (k *Key) Square() string {
	return string(k.square[:])
}

func (k *Key) Grid() [side][side]byte {
	var grid [side][side]byte
	for i, c := range k.square {
		grid[i/side][i%side] = c
	}
	return grid
}

// Position returns the linear index of letter in the square, or -1.
func (k *Key) Position(letter byte) int {
	if letter < 'A' || letter > 'Z' {
		return -1
	}
	return int(k.position[letter-'A'])
}

// Sanitize upper-cases letters, replaces the omitted letter and drops every
// non-letter byte. The result is a new slice.
func (k *Key) Sanitize(text []byte) []byte {
	out := make([]byte, 0, len(text))
	for _, c := range text {
		letter, ok := upper(c)
		if !ok {
			continue
		}
		if letter == k.opts.Omit {
			letter = k.opts.Replace
		}
		out = append(out, letter)
	}
	return out
}

// Encrypt enciphers sanitized plain text, inserting the double fill between
// repeated letters of a digram and padding odd input with the extra fill.
func (k *Key) Encrypt(plain []byte) ([]byte, error) {
	out := make([]byte, 0, len(plain)+len(plain)/2+1)
	for i := 0; i < len(plain); {
		start := i
		a := plain[i]
		var b byte
		if i+1 == len(plain) {
			b = k.filler(a, k.opts.ExtraFill)
			i++
		} else if plain[i+1] == a {
			b = k.filler(a, k.opts.DoubleFill)
			i++
		} else {
			b = plain[i+1]
			i += 2
		}
		pair, err := k.encryptDigram(a, b)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", start, err)
		}
		out = append(out, pair[0], pair[1])
	}
	return out, nil
}

// Decrypt reverses Encrypt. Filler letters stay in the output.
func (k *Key) Decrypt(cipherText []byte) ([]byte, error) {
	out := make([]byte, 0, len(cipherText)+1)
	for i := 0; i < len(cipherText); i += 2 {
		a := cipherText[i]
		b := k.opts.ExtraFill
		if i+1 < len(cipherText) {
			b = cipherText[i+1]
		}
		pair, err := k.decryptDigram(a, b)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", i, err)
		}
		out = append(out, pair[0], pair[1])
	}
	return out, nil
}

// filler returns fill unless it equals a, in which case the next square
// letter after fill (cyclic, skipping the omitted letter) is used.
func (k *Key) filler(a, fill byte) byte {
	if fill != a {
		return fill
	}
	next := fill
	for {
		next++
		if next > 'Z' {
			next = 'A'
		}
		if next != k.opts.Omit {
			return next
		}
	}
}

func (k *Key) locate(a, b byte) (int, int, error) {
	pa, pb := k.Position(a), k.Position(b)
	if pa < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCharacter, a)
	}
	if pb < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCharacter, b)
	}
	return pa, pb, nil
}

func (k *Key) encryptDigram(a, b byte) ([2]byte, error) {
	return k.shiftDigram(a, b, 1)
}

func (k *Key) decryptDigram(a, b byte) ([2]byte, error) {
	return k.shiftDigram(a, b, side-1)
}

func (k *Key) shiftDigram(a, b byte, shift int) ([2]byte, error) {
	pa, pb, err := k.locate(a, b)
	if err != nil {
		return [2]byte{}, err
	}
	rowA, colA := pa/side, pa%side
	rowB, colB := pb/side, pb%side
	switch {
	case rowA == rowB:
		return [2]byte{
			k.at(rowA, (colA+shift)%side),
			k.at(rowB, (colB+shift)%side),
		}, nil
	case colA == colB:
		return [2]byte{
			k.at((rowA+shift)%side, colA),
			k.at((rowB+shift)%side, colB),
		}, nil
	default:
		return [2]byte{k.at(rowA, colB), k.at(rowB, colA)}, nil
	}
}

func (k *Key) at(row, col int) byte {
	return k.square[row*side+col]
}

func upper(c byte) (byte, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 'A', true
	case c >= 'A' && c <= 'Z':
		return c, true
	default:
		return 0, false
	}
}
