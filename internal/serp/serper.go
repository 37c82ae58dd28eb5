package serp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/FranksOps/eventradar/pkg/httpclient"
	"golang.org/x/time/rate"
)

// DefaultSerperEndpoint is the Serper.dev web search endpoint.
const DefaultSerperEndpoint = "https://google.serper.dev/search"

// SerperConfig configures the Serper client.
type SerperConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	// QPS paces requests to the API. Zero means 5.
	QPS float64
}

// Serper implements Provider against the Serper.dev Google search API.
type Serper struct {
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

var _ Provider = (*Serper)(nil)

// NewSerper creates a Serper client. An empty API key is an error; callers
// without a key should run the aggregator with no provider instead.
func NewSerper(cfg SerperConfig) (*Serper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("serp: serper api key is empty")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSerperEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 5
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("serp: %w", err)
	}

	return &Serper{apiKey: cfg.APIKey, endpoint: cfg.Endpoint, client: client}, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	Events []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Date    string `json:"date"`
		Address string `json:"address"`
	} `json:"events"`
}

// Search issues one query. Event-typed results have their date and address
// folded into the snippet.
func (s *Serper) Search(ctx context.Context, query string, num int) ([]storage.SearchResult, error) {
	var resp serperResponse
	err := s.client.PostJSON(ctx, s.endpoint,
		map[string]string{"X-API-KEY": s.apiKey},
		serperRequest{Q: query, Num: num},
		&resp,
	)
	if err != nil {
		return nil, fmt.Errorf("serp: serper %q: %w", query, err)
	}

	results := make([]storage.SearchResult, 0, len(resp.Organic)+len(resp.Events))
	for _, item := range resp.Organic {
		results = append(results, storage.SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Origin:  storage.OriginOrganic,
		})
	}
	for _, item := range resp.Events {
		results = append(results, storage.SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: strings.TrimSpace(item.Date + " - " + item.Address),
			Origin:  storage.OriginOrganic,
		})
	}
	return results, nil
}
