package processing_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-digest/internal/processing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Hello!!!   세계", want: "Hello 세계"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "Check for info"},
		{name: "entities", input: "AT&amp;T deal", want: "AT T deal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "반도체 반도체 수출 수출 수출 금리 및 및 환율"
	got := processing.ExtractKeywords(text, 3, 2)
	want := []string{"수출", "반도체", "금리"}
	require.Equal(t, want, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
}

func TestExtractKeywordsIgnoresURLWords(t *testing.T) {
	text := "Fed rates rates https://example.com/fed-rates markets"
	got := processing.ExtractKeywords(text, 3, 3)
	require.ElementsMatch(t, []string{"rates", "fed", "markets"}, got)
}

func TestExtractKeywordsDropsStopwordsInBothLanguages(t *testing.T) {
	got := processing.ExtractKeywords("The chips and the chips 있다 있다 반도체", 0, 2)
	require.Equal(t, []string{"chips", "반도체"}, got)
}

func TestBuildDocumentID(t *testing.T) {
	id1 := processing.BuildDocumentID("us", "tech", "2025-01-02T03:04:05.000000Z")
	id2 := processing.BuildDocumentID("us", "tech", "2025-01-02T03:04:05.000000Z")
	id3 := processing.BuildDocumentID("kr", "tech", "2025-01-02T03:04:05.000000Z")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestRemoveURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "no urls", input: "Hello world", want: "Hello world"},
		{name: "single url", input: "Check https://example.com for more", want: "Check   for more"},
		{name: "url only", input: "https://example.com", want: " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.RemoveURLs(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", processing.Truncate("abc", 10))
	require.Equal(t, "ab", processing.Truncate("abc", 2))
	require.Equal(t, "", processing.Truncate("abc", 0))

	long := strings.Repeat("뉴", 300)
	got := processing.Truncate(long, 200)
	require.Equal(t, 200, utf8.RuneCountInString(got))
	require.True(t, utf8.ValidString(got))
}
