package serp

import (
	"context"

	"github.com/FranksOps/eventradar/internal/storage"
)

// Provider abstracts a keyword search API. Implementations return at most num
// results for query, tagged with their origin.
type Provider interface {
	Search(ctx context.Context, query string, num int) ([]storage.SearchResult, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string, num int) ([]storage.SearchResult, error)

func (f ProviderFunc) Search(ctx context.Context, query string, num int) ([]storage.SearchResult, error) {
	return f(ctx, query, num)
}
