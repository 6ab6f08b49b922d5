package registry

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/orbis-search/orbis/internal/domain"
)

// --- Mocks ---

type mockRepo struct {
	stored    map[string]domain.Domain
	createErr error
	listErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{stored: make(map[string]domain.Domain)}
}

func (m *mockRepo) Create(_ context.Context, d domain.Domain) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.stored[d.Name]; ok {
		return domain.ErrAlreadyExists
	}
	m.stored[d.Name] = d
	return nil
}

func (m *mockRepo) Update(_ context.Context, d domain.Domain) error {
	if _, ok := m.stored[d.Name]; !ok {
		return domain.ErrDomainNotFound
	}
	m.stored[d.Name] = d
	return nil
}

func (m *mockRepo) Get(_ context.Context, name string) (domain.Domain, error) {
	d, ok := m.stored[name]
	if !ok {
		return domain.Domain{}, domain.ErrDomainNotFound
	}
	return d, nil
}

func (m *mockRepo) List(_ context.Context) ([]domain.Domain, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Domain, 0, len(m.stored))
	for _, d := range m.stored {
		out = append(out, d)
	}
	return out, nil
}

func validDomain(name string) domain.Domain {
	return domain.Domain{Name: name, Threshold: 0.7, MaxResults: 10, Dimension: 8, Active: true}
}

// --- Tests ---

func TestCreate_ValidatesDefinition(t *testing.T) {
	svc := New(newMockRepo(), nil)

	bad := validDomain("support")
	bad.Dimension = 0
	_, err := svc.Create(context.Background(), bad)
	if !errors.Is(err, domain.ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain, got %v", err)
	}

	bad = validDomain("support")
	bad.Threshold = 1.5
	if _, err := svc.Create(context.Background(), bad); !errors.Is(err, domain.ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain for threshold, got %v", err)
	}
}

func TestCreate_PopulatesCache(t *testing.T) {
	svc := New(newMockRepo(), nil)

	created, err := svc.Create(context.Background(), validDomain("support"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := svc.Get("support")
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if got.Name != "support" {
		t.Errorf("unexpected cached domain: %+v", got)
	}
}

func TestGet_MissesWithoutRefresh(t *testing.T) {
	repo := newMockRepo()
	repo.stored["support"] = validDomain("support")

	svc := New(repo, nil)
	if _, err := svc.Get("support"); !errors.Is(err, domain.ErrDomainNotFound) {
		t.Fatalf("cache must start empty, got %v", err)
	}

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.Get("support"); err != nil {
		t.Fatalf("Get after Refresh: %v", err)
	}
}

func TestRefresh_PropagatesRepoError(t *testing.T) {
	repo := newMockRepo()
	repo.listErr = errors.New("store down")

	svc := New(repo, nil)
	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
}

func TestSetActive(t *testing.T) {
	svc := New(newMockRepo(), nil)
	if _, err := svc.Create(context.Background(), validDomain("support")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	d, err := svc.SetActive(context.Background(), "support", false)
	if err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if d.Active {
		t.Error("expected domain to be inactive")
	}

	got, _ := svc.Get("support")
	if got.Active {
		t.Error("cache must reflect the new active flag")
	}

	if _, err := svc.SetActive(context.Background(), "ghost", false); !errors.Is(err, domain.ErrDomainNotFound) {
		t.Fatalf("expected ErrDomainNotFound, got %v", err)
	}
}

func TestActiveDomains(t *testing.T) {
	svc := New(newMockRepo(), nil)
	ctx := context.Background()

	for _, name := range []string{"support", "wiki"} {
		if _, err := svc.Create(ctx, validDomain(name)); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}
	if _, err := svc.SetActive(ctx, "wiki", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	names := svc.ActiveDomains()
	sort.Strings(names)
	if len(names) != 1 || names[0] != "support" {
		t.Errorf("expected [support], got %v", names)
	}
}
