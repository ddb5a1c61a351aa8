// Package extract turns raw model output into a NewsRecord.
//
// Models rarely return bare JSON: they wrap it in fenced blocks or surround it
// with prose. Extraction therefore walks an ordered chain of strategies, each
// proposing a candidate JSON span; the first candidate that parses as a JSON
// object wins.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/processing"
)

// PrefixLimit caps the raw-text prefix carried by ExtractionError.
const PrefixLimit = 200

var (
	fencedBlock = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")
	braceSpan   = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Strategy proposes a candidate JSON span from raw text.
type Strategy struct {
	Name      string
	Candidate func(raw string) (string, bool)
}

// DefaultChain is direct parse, then fenced block, then the outermost brace
// span, then the first balanced object when surrounding prose has braces of its own.
var DefaultChain = []Strategy{
	{Name: "direct", Candidate: direct},
	{Name: "fenced", Candidate: fenced},
	{Name: "braces", Candidate: braces},
	{Name: "balanced", Candidate: balanced},
}

// Extraction is a successfully decoded record and the strategy that produced it.
type Extraction struct {
	Record   models.NewsRecord
	Strategy string
}

// ExtractionError reports that no strategy produced a JSON object.
type ExtractionError struct {
	Prefix string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON object in model response: %q", e.Prefix)
}

// Kind classifies the error for transport mapping.
func (e *ExtractionError) Kind() apperr.Kind { return apperr.KindExtraction }

// SchemaError reports a parsed object missing required structure.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "model response schema: " + e.Reason
}

// Kind classifies the error for transport mapping.
func (e *SchemaError) Kind() apperr.Kind { return apperr.KindSchema }

// Extract runs DefaultChain over raw.
func Extract(raw string) (Extraction, error) {
	return ExtractWith(DefaultChain, raw)
}

// ExtractWith runs the given chain in order; the first parsable candidate wins.
func ExtractWith(chain []Strategy, raw string) (Extraction, error) {
	for _, s := range chain {
		candidate, ok := s.Candidate(raw)
		if !ok {
			continue
		}
		doc, ok := parseObject(candidate)
		if !ok {
			continue
		}
		rec, err := decode(doc)
		if err != nil {
			return Extraction{}, err
		}
		return Extraction{Record: rec, Strategy: s.Name}, nil
	}
	return Extraction{}, &ExtractionError{Prefix: processing.Truncate(raw, PrefixLimit)}
}

func direct(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	return trimmed, trimmed != ""
}

func fenced(raw string) (string, bool) {
	m := fencedBlock.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func braces(raw string) (string, bool) {
	m := braceSpan.FindString(raw)
	return m, m != ""
}

// balanced tries every '{' in order and returns the first balanced span that
// parses as a JSON object. A brace that never closes ends the search, since
// everything after it is nested inside an unterminated object.
func balanced(raw string) (string, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		end := closingBrace(raw, start)
		if end < 0 {
			break
		}
		if span := raw[start : end+1]; gjson.Valid(span) && gjson.Parse(span).IsObject() {
			return span, true
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// closingBrace returns the index of the brace closing raw[start], skipping
// braces inside JSON strings, or -1.
func closingBrace(raw string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseObject(candidate string) (gjson.Result, bool) {
	if !gjson.Valid(candidate) {
		return gjson.Result{}, false
	}
	doc := gjson.Parse(candidate)
	return doc, doc.IsObject()
}

// decode is lenient about every field except items: missing or oddly typed
// values collapse to empty strings and empty slices.
func decode(doc gjson.Result) (models.NewsRecord, error) {
	items := doc.Get("items")
	if !items.Exists() {
		return models.NewsRecord{}, &SchemaError{Reason: "missing items field"}
	}
	if !items.IsArray() {
		return models.NewsRecord{}, &SchemaError{Reason: "items is not an array"}
	}

	rec := models.NewsRecord{
		Items:   make([]models.NewsItem, 0, len(items.Array())),
		Insight: text(doc.Get("insight")),
	}
	for _, v := range items.Array() {
		if !v.IsObject() {
			continue
		}
		rec.Items = append(rec.Items, decodeItem(v))
	}
	return rec, nil
}

func decodeItem(v gjson.Result) models.NewsItem {
	item := models.NewsItem{
		Title:       text(v.Get("title")),
		Body:        text(v.Get("body")),
		SourceLabel: text(v.Get("source_label")),
		SourceURL:   text(v.Get("source_url")),
		Glossary:    []models.GlossaryEntry{},
	}
	glossary := v.Get("glossary")
	if glossary.IsArray() {
		for _, g := range glossary.Array() {
			if !g.IsObject() {
				continue
			}
			item.Glossary = append(item.Glossary, models.GlossaryEntry{
				Term:       text(g.Get("term")),
				Definition: text(g.Get("definition")),
			})
		}
	}
	return item
}

func text(v gjson.Result) string {
	if v.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(v.String())
}
