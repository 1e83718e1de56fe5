// Package simhash fingerprints record content so the sink can count
// near-duplicate entries (copy-paste spam, repeated stock phrases) without
// pairwise string comparison.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// shingleSize is the word-window width. Two-word shingles keep enough
// ordering signal for short comment-length texts; single words would make
// any two comments sharing vocabulary collide.
const shingleSize = 2

// Fingerprint computes a 64-bit SimHash of the given text. Tokens are
// lowercased and stripped of punctuation first, so "Nice!" and "nice"
// contribute the same signal. Empty or whitespace-only text maps to 0.
func Fingerprint(text string) uint64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	for _, feature := range shingles(tokens) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()

		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Near reports whether two fingerprints are within threshold bits of each
// other.
func Near(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// tokenize lowercases the text and splits it on any non-letter/non-digit
// run.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// shingles returns overlapping word windows. Texts shorter than the window
// fall back to their raw tokens.
func shingles(tokens []string) []string {
	if len(tokens) < shingleSize {
		return tokens
	}
	out := make([]string, 0, len(tokens)-shingleSize+1)
	for i := 0; i+shingleSize <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+shingleSize], "_"))
	}
	return out
}
