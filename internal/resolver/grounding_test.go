package resolver_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/resolver"
)

const vertex = "https://vertexaisearch.cloud.google.com/grounding-api-redirect/AbC123"

func TestHostsMatches(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	require.True(t, hosts.Matches(vertex))
	require.True(t, hosts.Matches("https://NEWS.google.com/rss/articles/CBMi"))
	require.False(t, hosts.Matches("https://www.reuters.com/world/"))
	require.False(t, hosts.Matches(""))

	custom := resolver.NewHosts([]string{" Tracker.Example ", "", "tracker.example"})
	require.Equal(t, []string{"tracker.example"}, custom.Patterns())
	require.True(t, custom.Matches("https://tracker.example/r?id=1"))
	require.False(t, custom.Matches(vertex))
}

func TestNeedsReplacement(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	tests := []struct {
		url  string
		want bool
	}{
		{url: "", want: true},
		{url: vertex, want: true},
		{url: "www.bbc.com/news/1", want: true},
		{url: "ftp://files.example.com/a", want: true},
		{url: "https://www.bbc.com/news/1", want: false},
		{url: "http://example.com", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			require.Equal(t, tt.want, hosts.NeedsReplacement(tt.url))
		})
	}
}

func TestFilterPool(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	pool := hosts.FilterPool([]models.GroundingURL{
		{URI: vertex, Title: "vertex"},
		{URI: "https://a.example/1", Title: "A"},
		{URI: "https://a.example/1", Title: "A again"},
		{URI: "", Title: "empty"},
		{URI: "relative/path", Title: "relative"},
		{URI: "https://b.example/2", Title: "B"},
	})
	require.Equal(t, []models.GroundingURL{
		{URI: "https://a.example/1", Title: "A"},
		{URI: "https://b.example/2", Title: "B"},
	}, pool)
}

func TestApplyGroundingLabelMatchThenFallback(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	items := []models.NewsItem{
		{SourceLabel: "Reuters", SourceURL: vertex},
		{SourceLabel: "Bloomberg", SourceURL: "https://www.bloomberg.com/news/x"},
		{SourceLabel: "Unknown Outlet", SourceURL: ""},
		{SourceLabel: "CNN", SourceURL: "not-a-url"},
		{SourceLabel: "AP", SourceURL: vertex},
	}
	grounding := []models.GroundingURL{
		{URI: "https://apnews.com/article/1", Title: "apnews.com"},
		{URI: "https://www.reuters.com/tech/2", Title: "Reuters - Tech"},
		{URI: "https://www.cnn.com/3", Title: "cnn.com"},
	}

	outcomes := resolver.ApplyGrounding(items, grounding, hosts)

	require.Equal(t, "https://www.reuters.com/tech/2", items[0].SourceURL)
	require.Equal(t, "https://www.bloomberg.com/news/x", items[1].SourceURL)
	require.Equal(t, "https://apnews.com/article/1", items[2].SourceURL)
	require.Equal(t, "https://www.cnn.com/3", items[3].SourceURL)
	require.Equal(t, vertex, items[4].SourceURL)

	require.Len(t, outcomes, 4)
	require.Equal(t, resolver.ActionLabelMatch, outcomes[0].Action)
	require.Equal(t, resolver.ActionFallback, outcomes[1].Action)
	require.Equal(t, 2, outcomes[1].Index)
	require.Equal(t, resolver.ActionLabelMatch, outcomes[2].Action)
	require.Equal(t, resolver.ActionNoPool, outcomes[3].Action)
	require.Equal(t, "AP", items[4].SourceLabel)
}

func TestApplyGroundingIsOrderDependent(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	grounding := []models.GroundingURL{{URI: "https://www.yna.co.kr/view/1", Title: "연합뉴스"}}

	items := []models.NewsItem{
		{SourceLabel: "KBS", SourceURL: ""},
		{SourceLabel: "연합뉴스", SourceURL: ""},
	}
	resolver.ApplyGrounding(items, grounding, hosts)

	require.Equal(t, "https://www.yna.co.kr/view/1", items[0].SourceURL)
	require.Equal(t, "", items[1].SourceURL)
}

func TestApplyGroundingEmptyLabelFallsBack(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	items := []models.NewsItem{{SourceLabel: "", SourceURL: vertex}}
	grounding := []models.GroundingURL{{URI: "https://x.example/1", Title: "Anything"}}

	outcomes := resolver.ApplyGrounding(items, grounding, hosts)
	require.Equal(t, "https://x.example/1", items[0].SourceURL)
	require.Equal(t, resolver.ActionFallback, outcomes[0].Action)
}

func TestApplyGroundingNeverAssignsTwice(t *testing.T) {
	hosts := resolver.NewHosts(nil)
	for n := 0; n < 8; n++ {
		items := make([]models.NewsItem, 6)
		for i := range items {
			items[i] = models.NewsItem{SourceLabel: fmt.Sprintf("Outlet %d", i%3), SourceURL: vertex}
		}
		grounding := make([]models.GroundingURL, n)
		for i := range grounding {
			grounding[i] = models.GroundingURL{
				URI:   fmt.Sprintf("https://site%d.example/a", i),
				Title: fmt.Sprintf("Outlet %d", i%2),
			}
		}
		original := append([]models.GroundingURL(nil), grounding...)

		resolver.ApplyGrounding(items, grounding, hosts)

		seen := map[string]bool{}
		for _, item := range items {
			if item.SourceURL == vertex {
				continue
			}
			require.False(t, seen[item.SourceURL], "uri %s assigned twice", item.SourceURL)
			seen[item.SourceURL] = true
		}
		require.Len(t, seen, min(n, len(items)))
		require.Equal(t, original, grounding, "caller's grounding slice must not change")
	}
}
