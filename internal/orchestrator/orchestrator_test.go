package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/orbis-search/orbis/internal/domain"
)

var query = []float32{1, 0, 0}

// vecWithSim builds a unit vector whose cosine similarity to (1,0,0) is sim.
func vecWithSim(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func testDomains() []domain.Domain {
	return []domain.Domain{
		{Name: "support", Threshold: 0.7, MaxResults: 10, Dimension: 3, Active: true},
		{Name: "wiki", Threshold: 0.2, MaxResults: 10, Dimension: 3, Active: true},
		{Name: "archive", Threshold: 0.5, MaxResults: 10, Dimension: 3, Active: false},
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o := New(Config{DataDir: t.TempDir()})
	if err := o.Initialize(context.Background(), testDomains()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return o
}

func mustAddTo(t *testing.T, o *Orchestrator, dom, id string, vec []float32) {
	t.Helper()
	if _, err := o.AddEmbedding(context.Background(), dom, id, vec, nil); err != nil {
		t.Fatalf("AddEmbedding(%s, %s): %v", dom, id, err)
	}
}

func TestInitialize_SkipsInactiveDomains(t *testing.T) {
	o := newTestOrchestrator(t)

	stats, err := o.Stats("")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected indices for 2 active domains, got %d", len(stats))
	}
	if _, err := o.Stats("archive"); !errors.Is(err, domain.ErrDomainNotFound) {
		t.Errorf("inactive domain must have no index, got %v", err)
	}
}

func TestAddEmbedding_UnknownDomain(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.AddEmbedding(context.Background(), "nonexistent", "x", query, nil)
	if !errors.Is(err, domain.ErrDomainNotFound) {
		t.Fatalf("expected ErrDomainNotFound, got %v", err)
	}
}

func TestAddEmbedding_GeneratesID(t *testing.T) {
	o := newTestOrchestrator(t)
	res, err := o.AddEmbedding(context.Background(), "support", "", vecWithSim(0.9), nil)
	if err != nil {
		t.Fatalf("AddEmbedding: %v", err)
	}
	if res.ID == "" {
		t.Error("expected a generated id")
	}
	if !res.Inserted {
		t.Error("expected insertion")
	}
	if res.Dimension != 3 {
		t.Errorf("expected dimension 3, got %d", res.Dimension)
	}
}

func TestGetEmbedding(t *testing.T) {
	o := newTestOrchestrator(t)
	mustAddTo(t, o, "support", "r1", vecWithSim(0.9))

	rec, ok := o.GetEmbedding("support", "r1")
	if !ok {
		t.Fatal("expected record r1")
	}
	if rec.ID != "r1" || rec.Domain != "support" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, ok := o.GetEmbedding("support", "ghost"); ok {
		t.Error("unknown id must not resolve")
	}
	if _, ok := o.GetEmbedding("nonexistent", "r1"); ok {
		t.Error("unknown domain must not resolve")
	}
}

func TestSearchDomain_UnknownDomainIsEmpty(t *testing.T) {
	o := newTestOrchestrator(t)
	results, err := o.SearchDomain(context.Background(), "nonexistent", query, 5)
	if err != nil {
		t.Fatalf("unknown domain must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestSearchMultipleDomains_EmptyInput(t *testing.T) {
	o := newTestOrchestrator(t)
	out, err := o.SearchMultipleDomains(context.Background(), nil, query, 5)
	if err != nil {
		t.Fatalf("SearchMultipleDomains: %v", err)
	}
	if len(out.Results) != 0 || len(out.SearchedDomains) != 0 {
		t.Errorf("expected empty outcome, got %+v", out)
	}
}

func TestSearchMultipleDomains_MergeAndThresholds(t *testing.T) {
	o := newTestOrchestrator(t)

	// support (threshold 0.7) holds a strong and a filtered-out match;
	// wiki (threshold 0.2) holds a weak match that its low threshold admits.
	mustAddTo(t, o, "support", "s-strong", vecWithSim(0.95))
	mustAddTo(t, o, "support", "s-filtered", vecWithSim(0.5))
	mustAddTo(t, o, "wiki", "w-weak", vecWithSim(0.4))

	out, err := o.SearchMultipleDomains(
		context.Background(), []string{"support", "wiki"}, query, 10)
	if err != nil {
		t.Fatalf("SearchMultipleDomains: %v", err)
	}

	if len(out.SearchedDomains) != 2 {
		t.Fatalf("expected 2 searched domains, got %v", out.SearchedDomains)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 merged results, got %+v", out.Results)
	}
	// Per-domain thresholds apply before the merge: s-filtered (0.5 < 0.7)
	// is gone while the weaker w-weak (0.4 >= 0.2) survives and ranks below
	// the strong support hit.
	if out.Results[0].ID != "s-strong" || out.Results[1].ID != "w-weak" {
		t.Errorf("unexpected merge order: [%s %s]", out.Results[0].ID, out.Results[1].ID)
	}
}

func TestSearchMultipleDomains_SubsetOfUnion(t *testing.T) {
	o := newTestOrchestrator(t)
	mustAddTo(t, o, "support", "a", vecWithSim(0.9))
	mustAddTo(t, o, "support", "b", vecWithSim(0.75))
	mustAddTo(t, o, "wiki", "c", vecWithSim(0.8))
	mustAddTo(t, o, "wiki", "d", vecWithSim(0.3))

	ctx := context.Background()
	union := make(map[string]bool)
	for _, name := range []string{"support", "wiki"} {
		results, err := o.SearchDomain(ctx, name, query, 10)
		if err != nil {
			t.Fatalf("SearchDomain(%s): %v", name, err)
		}
		for _, r := range results {
			union[r.ID] = true
		}
	}

	out, err := o.SearchMultipleDomains(ctx, []string{"support", "wiki"}, query, 3)
	if err != nil {
		t.Fatalf("SearchMultipleDomains: %v", err)
	}
	if len(out.Results) > 3 {
		t.Fatalf("topK not honored: %d results", len(out.Results))
	}
	for _, r := range out.Results {
		if !union[r.ID] {
			t.Errorf("merged result %s not present in per-domain union", r.ID)
		}
	}
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i].Similarity > out.Results[i-1].Similarity {
			t.Error("merged results not sorted by similarity descending")
		}
	}
}

func TestSearchMultipleDomains_SkipsUnknownAndInactive(t *testing.T) {
	o := newTestOrchestrator(t)
	mustAddTo(t, o, "support", "a", vecWithSim(0.9))

	out, err := o.SearchMultipleDomains(
		context.Background(), []string{"support", "ghost", "archive"}, query, 10)
	if err != nil {
		t.Fatalf("SearchMultipleDomains: %v", err)
	}
	if len(out.SearchedDomains) != 1 || out.SearchedDomains[0] != "support" {
		t.Errorf("expected only support searched, got %v", out.SearchedDomains)
	}
}

func TestRefreshDomains_AddsNewAndFreezesDeactivated(t *testing.T) {
	o := newTestOrchestrator(t)
	mustAddTo(t, o, "wiki", "w", vecWithSim(0.9))

	refreshed := []domain.Domain{
		{Name: "support", Threshold: 0.7, MaxResults: 10, Dimension: 3, Active: true},
		{Name: "wiki", Threshold: 0.2, MaxResults: 10, Dimension: 3, Active: false},
		{Name: "legal", Threshold: 0.6, MaxResults: 5, Dimension: 3, Active: true},
	}
	if err := o.RefreshDomains(context.Background(), refreshed); err != nil {
		t.Fatalf("RefreshDomains: %v", err)
	}

	// New domain is usable.
	if _, err := o.AddEmbedding(context.Background(), "legal", "l", vecWithSim(0.9), nil); err != nil {
		t.Errorf("new domain must accept inserts: %v", err)
	}

	// Deactivated domain is frozen: no inserts, excluded from fan-out,
	// single-domain reads still work.
	_, err := o.AddEmbedding(context.Background(), "wiki", "w2", vecWithSim(0.8), nil)
	if !errors.Is(err, domain.ErrDomainInactive) {
		t.Errorf("expected ErrDomainInactive, got %v", err)
	}

	out, err := o.SearchMultipleDomains(context.Background(), []string{"support", "wiki"}, query, 10)
	if err != nil {
		t.Fatalf("SearchMultipleDomains: %v", err)
	}
	for _, name := range out.SearchedDomains {
		if name == "wiki" {
			t.Error("deactivated domain must be excluded from cross-domain search")
		}
	}

	results, err := o.SearchDomain(context.Background(), "wiki", query, 10)
	if err != nil {
		t.Fatalf("SearchDomain on frozen domain: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("frozen domain must still serve reads, got %d results", len(results))
	}
}

func TestRemoveEmbedding(t *testing.T) {
	o := newTestOrchestrator(t)
	mustAddTo(t, o, "support", "a", vecWithSim(0.9))

	if !o.RemoveEmbedding("support", "a") {
		t.Error("expected removal to succeed")
	}
	if o.RemoveEmbedding("support", "a") {
		t.Error("second removal must return false")
	}
	if o.RemoveEmbedding("ghost", "a") {
		t.Error("unknown domain must return false")
	}
}

func TestCompactOver(t *testing.T) {
	o := newTestOrchestrator(t)
	mustAddTo(t, o, "support", "a", vecWithSim(0.9))
	mustAddTo(t, o, "support", "b", vecWithSim(0.8))
	o.RemoveEmbedding("support", "a")

	compacted := o.CompactOver(context.Background(), 0.3)
	if len(compacted) != 1 || compacted[0] != "support" {
		t.Fatalf("expected support compacted, got %v", compacted)
	}

	stats, err := o.Stats("support")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[0].TotalSlots != 1 {
		t.Errorf("expected 1 slot after compaction, got %d", stats[0].TotalSlots)
	}
}
