package httpapi

import (
	"time"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/health"
	"github.com/orbis-search/orbis/internal/index"
)

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Principal string `json:"principal"`
	Domain    string `json:"domain,omitempty"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
}

type resultDTO struct {
	ID         string            `json:"id"`
	Domain     string            `json:"domain"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type queryResponse struct {
	Results         []resultDTO `json:"results"`
	Confidence      float64     `json:"confidence"`
	SearchedDomains []string    `json:"searched_domains"`
	Fallback        bool        `json:"fallback"`
	Degraded        bool        `json:"degraded,omitempty"`
	Message         string      `json:"message,omitempty"`
}

func outcomeToDTO(o domain.RetrievalOutcome) queryResponse {
	results := make([]resultDTO, len(o.Results))
	for i, r := range o.Results {
		results[i] = resultDTO{
			ID:         r.ID,
			Domain:     r.Domain,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		}
	}
	return queryResponse{
		Results:         results,
		Confidence:      o.Confidence,
		SearchedDomains: o.SearchedDomains,
		Fallback:        o.Fallback,
		Degraded:        o.Degraded,
		Message:         o.Message,
	}
}

type createDomainRequest struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name,omitempty"`
	Threshold   float64 `json:"threshold"`
	MaxResults  int     `json:"max_results"`
	Dimension   int     `json:"dimension"`
	StoragePath string  `json:"storage_path,omitempty"`
}

func (r createDomainRequest) toDomain() domain.Domain {
	return domain.Domain{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Threshold:   r.Threshold,
		MaxResults:  r.MaxResults,
		Dimension:   r.Dimension,
		StoragePath: r.StoragePath,
		Active:      true,
	}
}

type patchDomainRequest struct {
	Active *bool `json:"active"`
}

type domainDTO struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Threshold   float64   `json:"threshold"`
	MaxResults  int       `json:"max_results"`
	Dimension   int       `json:"dimension"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func domainToDTO(d domain.Domain) domainDTO {
	return domainDTO{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Threshold:   d.Threshold,
		MaxResults:  d.MaxResults,
		Dimension:   d.Dimension,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
	}
}

type listDomainsResponse struct {
	Items []domainDTO `json:"items"`
}

type statsDTO struct {
	Domain         string  `json:"domain"`
	VectorCount    int     `json:"vector_count"`
	TotalSlots     int     `json:"total_slots"`
	Dimension      int     `json:"dimension"`
	Threshold      float64 `json:"threshold"`
	TombstoneRatio float64 `json:"tombstone_ratio"`
}

func statsToDTO(st index.Stats) statsDTO {
	return statsDTO{
		Domain:         st.Domain,
		VectorCount:    st.VectorCount,
		TotalSlots:     st.TotalSlots,
		Dimension:      st.Dimension,
		Threshold:      st.Threshold,
		TombstoneRatio: st.TombstoneRatio,
	}
}

type statsResponse struct {
	Items []statsDTO `json:"items"`
}

type addRecordRequest struct {
	ID       string            `json:"id,omitempty"`
	Vector   []float32         `json:"vector,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type recordDTO struct {
	ID        string            `json:"id"`
	Domain    string            `json:"domain"`
	Vector    []float32         `json:"vector"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func recordToDTO(r domain.VectorRecord) recordDTO {
	return recordDTO{
		ID:        r.ID,
		Domain:    r.Domain,
		Vector:    r.Vector,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
}

type addRecordResponse struct {
	ID        string `json:"id"`
	Dimension int    `json:"dimension"`
	Inserted  bool   `json:"inserted"`
}

type compactResponse struct {
	Compacted []string `json:"compacted"`
}

type healthDTO struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthToDTO(r health.Report) healthDTO {
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return healthDTO{Status: string(r.Status), Checks: checks}
}
