package classify

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func testClassifier() *KeywordClassifier {
	return NewKeyword(map[string][]string{
		"support": {"refund", "invoice", "ticket"},
		"wiki":    {"architecture", "runbook", "deploy"},
	}, zap.NewNop())
}

func TestClassify(t *testing.T) {
	c := testClassifier()
	ctx := context.Background()

	tests := []struct {
		name    string
		query   string
		wantDom string
		wantOK  bool
	}{
		{"single hit", "how do I get a refund?", "support", true},
		{"case insensitive", "REFUND please", "support", true},
		{"majority wins", "deploy runbook mentions a ticket", "wiki", true},
		{"no hits", "completely unrelated question", "", false},
		{"tie reports nothing", "refund runbook", "", false},
		{"empty query", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom, ok := c.Classify(ctx, tt.query)
			if dom != tt.wantDom || ok != tt.wantOK {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)",
					tt.query, dom, ok, tt.wantDom, tt.wantOK)
			}
		})
	}
}

func TestClassify_NoKeywordsConfigured(t *testing.T) {
	c := NewKeyword(nil, zap.NewNop())
	if _, ok := c.Classify(context.Background(), "refund"); ok {
		t.Error("classifier without keywords must not classify")
	}
}

func TestNewKeyword_DropsBlankKeywords(t *testing.T) {
	c := NewKeyword(map[string][]string{
		"support": {"  ", ""},
		"wiki":    {"runbook"},
	}, zap.NewNop())

	if _, ok := c.keywords["support"]; ok {
		t.Error("domain with only blank keywords should be dropped")
	}
	if dom, ok := c.Classify(context.Background(), "the runbook"); !ok || dom != "wiki" {
		t.Errorf("Classify = (%q, %v), want (wiki, true)", dom, ok)
	}
}
