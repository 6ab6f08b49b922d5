// Package classify picks a candidate domain for a free-text query when
// the caller did not name one.
package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
)

// KeywordClassifier maps queries to domains by case-insensitive keyword
// hits. The domain with the most hits wins; ties and zero hits report no
// classification so the caller falls back to searching everything.
type KeywordClassifier struct {
	keywords map[string][]string // domain name -> lowercase keywords
	logger   *zap.Logger
}

// NewKeyword builds a classifier from configured keyword lists.
func NewKeyword(keywords map[string][]string, logger *zap.Logger) *KeywordClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := make(map[string][]string, len(keywords))
	for dom, words := range keywords {
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				lowered = append(lowered, w)
			}
		}
		if len(lowered) > 0 {
			normalized[dom] = lowered
		}
	}
	return &KeywordClassifier{keywords: normalized, logger: logger}
}

// Classify implements domain.Classifier.
func (c *KeywordClassifier) Classify(_ context.Context, query string) (string, bool) {
	q := strings.ToLower(query)
	if q == "" || len(c.keywords) == 0 {
		return "", false
	}

	best := ""
	bestHits := 0
	tied := false
	for dom, words := range c.keywords {
		hits := 0
		for _, w := range words {
			if strings.Contains(q, w) {
				hits++
			}
		}
		switch {
		case hits > bestHits:
			best, bestHits, tied = dom, hits, false
		case hits == bestHits && hits > 0:
			tied = true
		}
	}

	if bestHits == 0 || tied {
		return "", false
	}

	c.logger.Debug("query classified",
		zap.String("domain", best),
		zap.Int("keyword_hits", bestHits))
	return best, true
}

var _ domain.Classifier = (*KeywordClassifier)(nil)
