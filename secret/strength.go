package secret

import (
	"encoding/base64"
	"math"
	"strings"
	"unicode"
)

const urlSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Strength is the result of Analyze. Each bool is one check; Passed counts
// the checks that held out of Total.
type Strength struct {
	Length         int
	ExpectedLength int
	// CharClasses counts upper, lower, digit and -_ classes present.
	CharClasses int
	// EntropyPerChar is the Shannon entropy of the character distribution.
	EntropyPerChar float64
	// EntropyBits is the generation entropy when the length matches the
	// expected encoding, otherwise the statistical estimate.
	EntropyBits float64
	Level       string

	LengthOK     bool
	VarietyOK    bool
	EncodingOK   bool
	NoRepetition bool
	URLSafe      bool
	LevelOK      bool

	Passed int
	Total  int
}

// OK reports whether every check passed.
func (s Strength) OK() bool { return s.Passed == s.Total }

// Analyze checks token against what Generate(expectedBytes) produces.
func Analyze(token string, expectedBytes int) Strength {
	expectedLen := base64.RawURLEncoding.EncodedLen(expectedBytes)
	s := Strength{
		Length:         len(token),
		ExpectedLength: expectedLen,
		Total:          6,
	}

	s.LengthOK = len(token) >= expectedLen

	s.CharClasses = charClasses(token)
	s.VarietyOK = s.CharClasses >= 3

	s.EntropyPerChar = shannon(token)
	if len(token) == expectedLen {
		s.EntropyBits = float64(expectedBytes * 8)
		s.EncodingOK = true
	} else {
		s.EntropyBits = s.EntropyPerChar * float64(len(token))
	}

	s.NoRepetition = distinctTrigrams(token) > int(float64(len(token))*0.8)

	s.URLSafe = token != "" && strings.Trim(token, urlSafeAlphabet) == ""

	s.Level = level(s.EntropyBits)
	s.LevelOK = s.EntropyBits >= float64(expectedBytes*8)

	for _, ok := range []bool{s.LengthOK, s.VarietyOK, s.EncodingOK, s.NoRepetition, s.URLSafe, s.LevelOK} {
		if ok {
			s.Passed++
		}
	}
	return s
}

func charClasses(token string) int {
	var upper, lower, digit, special bool
	for _, r := range token {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case r == '-' || r == '_':
			special = true
		}
	}
	n := 0
	for _, b := range []bool{upper, lower, digit, special} {
		if b {
			n++
		}
	}
	return n
}

func shannon(token string) float64 {
	if token == "" {
		return 0
	}
	counts := make(map[rune]int)
	n := 0
	for _, r := range token {
		counts[r]++
		n++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

func distinctTrigrams(token string) int {
	seen := make(map[string]struct{})
	for i := 0; i+3 <= len(token); i++ {
		seen[token[i:i+3]] = struct{}{}
	}
	return len(seen)
}

func level(bits float64) string {
	switch {
	case bits >= 384:
		return "very strong"
	case bits >= 256:
		return "strong"
	case bits >= 128:
		return "moderate"
	default:
		return "weak"
	}
}
