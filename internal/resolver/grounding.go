package resolver

import (
	"strings"

	"github.com/DeafMist/news-digest/internal/models"
)

// ApplyGrounding assigns grounding URIs to items whose URL needs replacement.
//
// Items are visited in order. Each one takes the first pool entry whose title
// contains the item's source label (case-insensitive), otherwise the first
// remaining entry. Taken entries leave the pool, so no URI is assigned twice.
// The assignment is greedy and order-dependent on purpose; changing it changes
// which outlet ends up linked to which story.
func ApplyGrounding(items []models.NewsItem, grounding []models.GroundingURL, hosts Hosts) []Outcome {
	pool := hosts.FilterPool(grounding)
	var outcomes []Outcome

	for i := range items {
		item := &items[i]
		if !hosts.NeedsReplacement(item.SourceURL) {
			continue
		}
		if len(pool) == 0 {
			outcomes = append(outcomes, Outcome{Index: i, Before: item.SourceURL, After: item.SourceURL, Action: ActionNoPool})
			continue
		}

		pick, action := 0, ActionFallback
		if idx := matchLabel(pool, item.SourceLabel); idx >= 0 {
			pick, action = idx, ActionLabelMatch
		}

		before := item.SourceURL
		item.SourceURL = pool[pick].URI
		pool = append(pool[:pick], pool[pick+1:]...)
		outcomes = append(outcomes, Outcome{Index: i, Before: before, After: item.SourceURL, Action: action})
	}
	return outcomes
}

func matchLabel(pool []models.GroundingURL, label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return -1
	}
	for i, g := range pool {
		if strings.Contains(strings.ToLower(g.Title), label) {
			return i
		}
	}
	return -1
}
