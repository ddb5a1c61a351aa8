package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/news-digest/internal/models"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "record_id":  {"type": "long"},
      "region":     {"type": "keyword"},
      "category":   {"type": "keyword"},
      "titles":     {"type": "text"},
      "text":       {"type": "text"},
      "insight":    {"type": "text"},
      "keywords":   {"type": "keyword"},
      "sources":    {"type": "object", "enabled": false},
      "summary":    {"type": "text", "index": false},
      "created_at": {"type": "date"}
    }
  }
}`

const (
	defaultSearchSize = 20
	maxSearchSize     = 200
	defaultPruneBatch = 1000
)

// Client wraps go-elasticsearch with the archive operations.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
	now   func() time.Time
}

// SearchParams narrow an archive search.
type SearchParams struct {
	Query    string
	Region   string
	Category string
	Keywords []string
	From     int
	Size     int
	Start    *time.Time
	End      *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                    `json:"total"`
	Items []models.ArchiveDocument `json:"items"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.ArchiveDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func New(addr, index string, log *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		es:    es,
		index: index,
		log:   log.With("component", "archive", "index", index),
		now:   time.Now,
	}, nil
}

// failure turns an error response into an error carrying the cluster's reason.
func failure(op string, res *esapi.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("%s: %s: %s", op, res.Status(), strings.TrimSpace(string(data)))
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return failure("ping elasticsearch", res)
	}
	return nil
}

// EnsureIndex creates the archive index with its mapping when it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	exists, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	res, err := c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err := failure("create index", res)
		// another worker won the race
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return err
	}
	c.log.Info("archive index created")
	return nil
}

// IndexArchive writes doc under its own id, so redelivered events overwrite.
func (c *Client) IndexArchive(ctx context.Context, doc models.ArchiveDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal archive document: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return failure("index "+doc.ID, res)
	}
	return nil
}

// SearchArchive runs a bool query over the archive, newest first.
func (c *Client) SearchArchive(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(searchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search archive: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, failure("search archive", res)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: make([]models.ArchiveDocument, 0, len(parsed.Hits.Hits)),
	}
	for _, hit := range parsed.Hits.Hits {
		out.Items = append(out.Items, hit.Source)
	}
	return out, nil
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func searchBody(params SearchParams) map[string]any {
	size := params.Size
	switch {
	case size <= 0:
		size = defaultSearchSize
	case size > maxSearchSize:
		size = maxSearchSize
	}
	from := max(params.From, 0)

	var filters []map[string]any
	if params.Region != "" {
		filters = append(filters, term("region", params.Region))
	}
	if params.Category != "" {
		filters = append(filters, term("category", params.Category))
	}
	if len(params.Keywords) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"keywords": params.Keywords}})
	}
	if window := createdWithin(params.Start, params.End); window != nil {
		filters = append(filters, window)
	}

	boolQuery := map[string]any{}
	switch {
	case params.Query != "":
		boolQuery["must"] = []map[string]any{{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"titles^2", "text", "insight"},
			},
		}}
	case len(filters) == 0:
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	return map[string]any{
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
			{"record_id": map[string]any{"order": "desc"}},
		},
	}
}

func createdWithin(start, end *time.Time) map[string]any {
	if start == nil && end == nil {
		return nil
	}
	bounds := map[string]any{}
	if start != nil {
		bounds["gte"] = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		bounds["lte"] = end.UTC().Format(time.RFC3339)
	}
	return map[string]any{"range": map[string]any{"created_at": bounds}}
}

// DeleteOlderThan prunes documents created before now-maxAge, one
// delete-by-query batch at a time, until a batch comes back short.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultPruneBatch
	}
	cutoff := c.now().Add(-maxAge).UTC().Format(time.RFC3339)
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{"created_at": map[string]any{"lte": cutoff}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	var total int64
	for {
		n, err := c.deleteBatch(ctx, payload, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, failure("delete by query", res)
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health reports an error unless the cluster answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return failure("cluster health", res)
	}
	return nil
}
