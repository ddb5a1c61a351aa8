// Package processing turns stored digests into searchable archive text.
package processing

import (
	"cmp"
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"
)

var (
	urlPattern  = regexp.MustCompile(`https?://[^\s]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// stopwords covers the two output languages of the digest.
var stopwords = lo.SliceToMap([]string{
	"a", "an", "the", "to", "in", "for", "of", "and", "on", "with", "is", "are", "was", "by", "as", "at", "from", "its",
	"및", "등", "것", "수", "이", "그", "더", "위해", "대한", "있는", "있다", "했다", "또한",
}, func(w string) (string, struct{}) { return w, struct{}{} })

// RemoveURLs blanks out every http(s) URL in input.
func RemoveURLs(input string) string {
	return urlPattern.ReplaceAllString(input, " ")
}

// CleanText unescapes HTML entities, drops URLs and punctuation and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	s := RemoveURLs(html.UnescapeString(input))
	s = punctuation.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ExtractKeywords returns up to limit of the most frequent non-stopword tokens
// with at least minLen runes. Ties are ordered alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	tokens := lo.FilterMap(strings.Fields(strings.ToLower(CleanText(text))), func(tok string, _ int) (string, bool) {
		tok = strings.TrimFunc(tok, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if utf8.RuneCountInString(tok) < minLen {
			return "", false
		}
		_, stop := stopwords[tok]
		return tok, !stop
	})
	if len(tokens) == 0 {
		return nil
	}

	freq := lo.CountValues(tokens)
	words := lo.Keys(freq)
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(freq[b], freq[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// BuildDocumentID hashes a record's identity into a deterministic archive ID.
func BuildDocumentID(region, category, createdAt string) string {
	sum := sha1.Sum([]byte(region + "|" + category + "|" + createdAt))
	return hex.EncodeToString(sum[:])
}

// Truncate returns at most limit runes of s.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
