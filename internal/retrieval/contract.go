package retrieval

import (
	"context"

	"github.com/orbis-search/orbis/internal/domain"
)

// Searcher is the index-side contract, satisfied by the orchestrator.
type Searcher interface {
	SearchDomain(ctx context.Context, domainName string, query []float32, topK int) ([]domain.SearchResult, error)
	SearchMultipleDomains(ctx context.Context, domainNames []string, query []float32, topK int) (domain.CrossDomainResult, error)
}

// DomainLister supplies the active domain names for the fallback phase.
type DomainLister interface {
	ActiveDomains() []string
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
