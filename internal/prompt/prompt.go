// Package prompt builds the model instructions for one (region, category) digest.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/news-digest/internal/models"
)

// DefaultLanguage is the language digests are written in unless configured otherwise.
const DefaultLanguage = "Korean"

// Prompt is the instruction pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// Catalog holds the topic instruction per region and category.
type Catalog map[models.Region]map[models.Category]string

const systemTemplate = `You are a news digest bot.
Hard rules:
- No greetings, acknowledgements or apologies.
- No preamble and no closing remarks.
- Output valid JSON only.
- Write every text field in %s.
- source_url must be the original article URL, never a search or redirect link.
- Do not copy sentences from the articles; state the facts briefly in your own words.
- glossary picks 1-2 terms from the story that a general reader may not know and explains them plainly.`

const formatInstruction = `
Respond with JSON in exactly this shape and nothing else.

{
  "items": [
    {
      "title": "headline",
      "body": "1-2 sentence summary (80 characters max)",
      "source_label": "outlet name",
      "source_url": "https://original-article-url",
      "glossary": [
        {"term": "hard term", "definition": "plain explanation in 1-2 sentences"}
      ]
    }
  ],
  "insight": "1-2 sentence takeaway"
}

Rules:
- items must contain exactly 5 entries
- glossary has 0-2 entries per item (empty array when nothing is hard)
- source_url is the original article URL
- output nothing outside the JSON`

// DefaultCatalog returns the built-in topic instructions.
func DefaultCatalog() Catalog {
	return Catalog{
		models.RegionUS: {
			models.CategoryGeneral: "Search today's top 5 United States news stories (politics, society, world) and output them in the JSON format below.",
			models.CategoryTech: `Search today's top 5 United States IT/technology news stories and output them in the JSON format below.
Only technology stories: AI, software, hardware, semiconductors, startups, big tech (Apple, Google, Microsoft, Meta, Amazon, Tesla), cybersecurity, cloud.
Never include politics, economy or entertainment stories.`,
			models.CategoryEconomy: `Search today's top 5 United States economy/finance news stories and output them in the JSON format below.
Only economy stories: stock market, the Fed, interest rates, currency, GDP, jobs data, earnings, real estate, trade, tariffs.
Never include politics, technology or entertainment stories.`,
			models.CategoryEntertainment: `Search today's top 5 United States entertainment/culture/sports news stories and output them in the JSON format below.
Only entertainment stories: Hollywood, film, music, TV, sports (NFL, NBA, MLB), celebrities, award shows.
Never include politics, economy or technology stories.`,
		},
		models.RegionKR: {
			models.CategoryGeneral: "Search today's top 5 South Korea news stories (politics, society, world) and output them in the JSON format below.",
			models.CategoryTech: `Search today's top 5 South Korea IT/technology news stories and output them in the JSON format below.
Only technology stories: AI, semiconductors, Samsung Electronics, SK hynix, Naver, Kakao, startups, telecom carriers, games.
Never include politics, economy or entertainment stories.`,
			models.CategoryEconomy: `Search today's top 5 South Korea economy/finance news stories and output them in the JSON format below.
Only economy stories: KOSPI, KOSDAQ, Bank of Korea, interest rates, exchange rate, real estate, earnings, exports and imports, prices.
Never include politics, technology or entertainment stories.`,
			models.CategoryEntertainment: `Search today's top 5 South Korea entertainment/culture/sports news stories and output them in the JSON format below.
Only entertainment stories: K-pop, dramas, film, idols, variety shows, KBO, K League, celebrities.
Never include politics, economy or technology stories.`,
		},
	}
}

// Builder renders prompts from a catalog.
type Builder struct {
	catalog  Catalog
	language string
}

// NewBuilder returns a builder; a nil catalog means DefaultCatalog and an empty language means DefaultLanguage.
func NewBuilder(catalog Catalog, language string) *Builder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return &Builder{catalog: catalog, language: language}
}

// Build renders the prompt for region and category.
func (b *Builder) Build(region models.Region, category models.Category) (Prompt, error) {
	topic, ok := b.catalog[region][category]
	if !ok || strings.TrimSpace(topic) == "" {
		return Prompt{}, fmt.Errorf("no prompt for %s/%s", region, category)
	}
	return Prompt{
		System: fmt.Sprintf(systemTemplate, b.language),
		User:   topic + "\n" + formatInstruction,
	}, nil
}

type catalogFile struct {
	Topics map[string]map[string]string `yaml:"topics"`
}

// LoadCatalog reads topic overrides from a YAML file and merges them over DefaultCatalog.
//
//	topics:
//	  us:
//	    tech: "..."
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse prompt catalog %s: %w", path, err)
	}

	catalog := DefaultCatalog()
	for region, topics := range file.Topics {
		byCategory, ok := catalog[models.Region(region)]
		if !ok {
			return nil, fmt.Errorf("prompt catalog %s: unknown region %q", path, region)
		}
		for category, text := range topics {
			if _, ok := byCategory[models.Category(category)]; !ok {
				return nil, fmt.Errorf("prompt catalog %s: unknown category %q", path, category)
			}
			if strings.TrimSpace(text) != "" {
				byCategory[models.Category(category)] = text
			}
		}
	}
	return catalog, nil
}
