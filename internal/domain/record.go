package domain

import "time"

// VectorRecord is one stored embedding. A record id exists in exactly one
// domain index; the vector is L2-normalized before storage so dot product
// equals cosine similarity.
type VectorRecord struct {
	ID        string
	Domain    string
	Vector    []float32
	Metadata  map[string]string
	CreatedAt time.Time
}

// SearchResult is a single similarity hit against one domain index.
type SearchResult struct {
	ID         string
	Domain     string
	Similarity float64
	Metadata   map[string]string
}

// CrossDomainResult is the merged product of a cross-domain fan-out:
// the globally sorted hits plus the domains that actually took part.
type CrossDomainResult struct {
	Results         []SearchResult
	SearchedDomains []string
}

// RetrievalOutcome is the final product of the two-phase retrieval strategy.
// Degraded outcomes carry Confidence 0 and a Message; an empty result set
// with no error still yields the confidence floor, so callers can tell
// "nothing relevant" apart from "retrieval broke".
type RetrievalOutcome struct {
	Results         []SearchResult
	Confidence      float64
	SearchedDomains []string
	Fallback        bool // results came from the cross-domain fallback phase
	Degraded        bool
	Message         string // suggested next step or failure summary
}
