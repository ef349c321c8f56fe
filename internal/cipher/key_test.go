package cipher

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func mustKey(t *testing.T, keyword string, opts Options) *Key {
	t.Helper()
	k, err := NewKey(keyword, opts)
	if err != nil {
		t.Fatalf("new key %q: %v", keyword, err)
	}
	return k
}

func TestKeywordVariantsProduceSameCipherText(t *testing.T) {
	const (
		plain     = "The dog jumped over the moon"
		cipherTxt = "UGPGNHOQKLPGIZPTUGLNMZIO"
		recovered = "THEDOGIUMPEDOVERTHEMOXON"
	)
	for _, keyword := range []string{"apple", "APple", "aP3ple", "A\n*pllllelll", "a@\"pap(lE"} {
		k := mustKey(t, keyword, Options{})
		if got := k.Square()[:4]; got != "APLE" {
			t.Fatalf("keyword %q: square prefix=%s want APLE", keyword, got)
		}
		encrypted, err := k.Encrypt(k.Sanitize([]byte(plain)))
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if string(encrypted) != cipherTxt {
			t.Fatalf("keyword %q: cipher=%s want %s", keyword, encrypted, cipherTxt)
		}
		decrypted, err := k.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(decrypted) != recovered {
			t.Fatalf("keyword %q: plain=%s want %s", keyword, decrypted, recovered)
		}
	}
}

func TestDoubleFillLetters(t *testing.T) {
	cases := []struct {
		fill      byte
		cipherTxt string
		plain     string
	}{
		{fill: 'X', cipherTxt: "SVUVVYVU", plain: "QXQZZXZQ"},
		{fill: 'x', cipherTxt: "SVUVVYVU", plain: "QXQZZXZQ"},
		{fill: 'Q', cipherTxt: "RSUVVUVU", plain: "QRQZZQZQ"},
		{fill: 'q', cipherTxt: "RSUVVUVU", plain: "QRQZZQZQ"},
		{fill: 'Z', cipherTxt: "UVUVVBVU", plain: "QZQZZAZQ"},
		{fill: 'z', cipherTxt: "UVUVVBVU", plain: "QZQZZAZQ"},
	}
	for _, tc := range cases {
		k := mustKey(t, "APLE", Options{DoubleFill: tc.fill})
		encrypted, err := k.Encrypt([]byte("QQZZZ"))
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if string(encrypted) != tc.cipherTxt {
			t.Fatalf("fill %q: cipher=%s want %s", tc.fill, encrypted, tc.cipherTxt)
		}
		decrypted, err := k.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(decrypted) != tc.plain {
			t.Fatalf("fill %q: plain=%s want %s", tc.fill, decrypted, tc.plain)
		}
	}
}

func TestExtraFillLetters(t *testing.T) {
	cases := []struct {
		extra     byte
		plain     string
		cipherTxt string
		recovered string
	}{
		{extra: 'Q', plain: "X", cipherTxt: "VS", recovered: "XQ"},
		{extra: 'X', plain: "X", cipherTxt: "YZ", recovered: "XY"},
		{extra: 'Z', plain: "Z", cipherTxt: "VB", recovered: "ZA"},
	}
	for _, tc := range cases {
		k := mustKey(t, "APLE", Options{DoubleFill: 'X', ExtraFill: tc.extra})
		encrypted, err := k.Encrypt([]byte(tc.plain))
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if string(encrypted) != tc.cipherTxt {
			t.Fatalf("extra %q: cipher=%s want %s", tc.extra, encrypted, tc.cipherTxt)
		}
		decrypted, err := k.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(decrypted) != tc.recovered {
			t.Fatalf("extra %q: plain=%s want %s", tc.extra, decrypted, tc.recovered)
		}
	}
}

func TestOmitAndReplaceLetters(t *testing.T) {
	cases := []struct {
		omit, replace byte
		cipherTxt     string
		recovered     string
	}{
		{omit: 'J', replace: 'I', cipherTxt: "MVVQ", recovered: "IXQI"},
		{omit: 'J', replace: 'J', cipherTxt: "MVVQ", recovered: "IXQI"},
		{omit: 'I', replace: 'I', cipherTxt: "MVVQ", recovered: "JXQJ"},
		{omit: 'I', replace: 'J', cipherTxt: "MVVQ", recovered: "JXQJ"},
		{omit: 'Q', replace: 'A', cipherTxt: "KVPI", recovered: "IXAJ"},
	}
	for _, tc := range cases {
		k := mustKey(t, "APLE", Options{DoubleFill: 'X', ExtraFill: 'Q', Omit: tc.omit, Replace: tc.replace})
		encrypted, err := k.Encrypt(k.Sanitize([]byte("IXQJ")))
		if err != nil {
			t.Fatalf("omit %q: encrypt: %v", tc.omit, err)
		}
		if string(encrypted) != tc.cipherTxt {
			t.Fatalf("omit %q replace %q: cipher=%s want %s", tc.omit, tc.replace, encrypted, tc.cipherTxt)
		}
		decrypted, err := k.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(decrypted) != tc.recovered {
			t.Fatalf("omit %q replace %q: plain=%s want %s", tc.omit, tc.replace, decrypted, tc.recovered)
		}
	}
}

func TestSanitizeAllBytes(t *testing.T) {
	text := make([]byte, 256)
	for i := range text {
		text[i] = byte(i)
	}
	k := mustKey(t, "", Options{})
	got := string(k.Sanitize(text))
	want := "ABCDEFGHIIKLMNOPQRSTUVWXYZABCDEFGHIIKLMNOPQRSTUVWXYZ"
	if got != want {
		t.Fatalf("sanitize=%s want %s", got, want)
	}
	if again := string(k.Sanitize([]byte(got))); again != got {
		t.Fatalf("sanitize not idempotent: %s", again)
	}
}

func TestSquareIsAlphabetPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		keyword := randomText(rng, rng.Intn(40))
		omit := byte('A' + rng.Intn(26))
		k := mustKey(t, keyword, Options{Omit: omit})
		square := k.Square()
		if len(square) != SquareSize {
			t.Fatalf("square length=%d", len(square))
		}
		if strings.IndexByte(square, omit) >= 0 {
			t.Fatalf("square %s contains omitted %q", square, omit)
		}
		seen := map[byte]bool{}
		for j := 0; j < len(square); j++ {
			c := square[j]
			if seen[c] {
				t.Fatalf("square %s repeats %q", square, c)
			}
			seen[c] = true
			if k.Position(c) != j {
				t.Fatalf("position(%q)=%d want %d", c, k.Position(c), j)
			}
		}
	}
}

func TestRoundTripRandomText(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		k := mustKey(t, randomText(rng, 12), Options{DoubleFill: byte('A' + rng.Intn(26))})
		plain := k.Sanitize([]byte(randomText(rng, 1+rng.Intn(60))))
		if len(plain) == 0 {
			continue
		}
		encrypted, err := k.Encrypt(plain)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if len(encrypted)%2 != 0 {
			t.Fatalf("odd cipher length %d", len(encrypted))
		}
		decrypted, err := k.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if got, want := string(decrypted), padded(k, plain); got != want {
			t.Fatalf("round trip=%s want %s", got, want)
		}
	}
}

func TestEncryptRejectsUnsanitizedText(t *testing.T) {
	k := mustKey(t, "APLE", Options{})
	if _, err := k.Encrypt([]byte("AB CD")); !errors.Is(err, ErrInvalidCharacter) {
		t.Fatalf("expected invalid character, got %v", err)
	}
	if _, err := k.Decrypt([]byte("AJ")); !errors.Is(err, ErrInvalidCharacter) {
		t.Fatalf("expected invalid character for omitted letter, got %v", err)
	}
}

func TestOptionsNormalize(t *testing.T) {
	if _, err := (Options{DoubleFill: '3'}).Normalize(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	opts, err := (Options{Omit: 'q', ExtraFill: 'Q'}).Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if opts.Omit != 'Q' || opts.ExtraFill != DefaultReplace {
		t.Fatalf("unexpected normalized options: %+v", opts)
	}
}

func TestNewKeyFromSquare(t *testing.T) {
	k, err := NewKeyFromSquare("ZYXWVUTSRQPONMLKIHGFEDCBA", Options{})
	if err != nil {
		t.Fatalf("from square: %v", err)
	}
	if k.Grid()[0][0] != 'Z' || k.Grid()[4][4] != 'A' {
		t.Fatalf("unexpected grid: %v", k.Grid())
	}
	for _, bad := range []string{"ABC", "AACDEFGHIKLMNOPQRSTUVWXYZ", "JBCDEFGHIKLMNOPQRSTUVWXYZ"} {
		if _, err := NewKeyFromSquare(bad, Options{}); !errors.Is(err, ErrInvalidSquare) {
			t.Fatalf("square %s: expected invalid square, got %v", bad, err)
		}
	}
}

func randomText(rng *rand.Rand, n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ .,!'0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[rng.Intn(len(charset))]
	}
	return string(b)
}

// padded applies the digram filler rules to sanitized text.
func padded(k *Key, plain []byte) string {
	var b strings.Builder
	for i := 0; i < len(plain); {
		a := plain[i]
		b.WriteByte(a)
		switch {
		case i+1 == len(plain):
			b.WriteByte(k.filler(a, k.opts.ExtraFill))
			i++
		case plain[i+1] == a:
			b.WriteByte(k.filler(a, k.opts.DoubleFill))
			i++
		default:
			b.WriteByte(plain[i+1])
			i += 2
		}
	}
	return b.String()
}
