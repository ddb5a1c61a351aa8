// Package validation rejects unknown regions and categories before any
// expensive work and reports soft problems found in extracted records.
package validation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/models"
)

// ExpectedItems is the number of items the prompt asks the model for.
const ExpectedItems = 5

// MaxGlossary is the per-item glossary size the prompt asks for.
const MaxGlossary = 2

// Region parses a region code.
func Region(raw string) (models.Region, error) {
	region := models.Region(strings.TrimSpace(raw))
	if !lo.Contains(models.Regions, region) {
		return "", apperr.Invalid("region", regionNames())
	}
	return region, nil
}

// Category parses a category that was explicitly supplied.
func Category(raw string) (models.Category, error) {
	category := models.Category(strings.TrimSpace(raw))
	if !lo.Contains(models.Categories, category) {
		return "", apperr.Invalid("category", CategoryNames())
	}
	return category, nil
}

// CategoryOrDefault treats a missing or blank category as general; a supplied
// unknown value is still an error.
func CategoryOrDefault(raw string, present bool) (models.Category, error) {
	if !present || strings.TrimSpace(raw) == "" {
		return models.CategoryGeneral, nil
	}
	return Category(raw)
}

// CategoryNames returns the allowed category values.
func CategoryNames() []string {
	return lo.Map(models.Categories, func(c models.Category, _ int) string { return string(c) })
}

func regionNames() []string {
	return lo.Map(models.Regions, func(r models.Region, _ int) string { return string(r) })
}

// CheckRecord returns soft findings about an extracted record. None of them is fatal.
func CheckRecord(rec models.NewsRecord) []string {
	var findings []string
	if len(rec.Items) != ExpectedItems {
		findings = append(findings, fmt.Sprintf("expected %d items, got %d", ExpectedItems, len(rec.Items)))
	}
	for i, item := range rec.Items {
		if strings.TrimSpace(item.Title) == "" {
			findings = append(findings, fmt.Sprintf("item %d has no title", i))
		}
		if len(item.Glossary) > MaxGlossary {
			findings = append(findings, fmt.Sprintf("item %d has %d glossary entries", i, len(item.Glossary)))
		}
	}
	return findings
}
