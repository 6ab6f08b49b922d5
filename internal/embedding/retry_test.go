package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orbis-search/orbis/internal/domain"
)

type flakyEmbedder struct {
	failures int
	calls    int
	result   domain.EmbeddingResult
	err      error
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls++
	if e.calls <= e.failures {
		return domain.EmbeddingResult{}, e.err
	}
	return e.result, nil
}

func TestRetryEmbedder_SucceedsAfterTransientFailure(t *testing.T) {
	inner := &flakyEmbedder{
		failures: 2,
		result:   domain.EmbeddingResult{Embedding: []float32{1, 0}},
		err:      errors.New("upstream timeout"),
	}
	e := NewRetry(inner, "openai", 3, time.Millisecond, nil)

	result, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(result.Embedding) != 2 {
		t.Errorf("embedding length = %d, want 2", len(result.Embedding))
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestRetryEmbedder_ExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("provider down")
	inner := &flakyEmbedder{failures: 10, err: wantErr}
	e := NewRetry(inner, "openai", 3, time.Millisecond, nil)

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Embed() error = %v, want %v", err, wantErr)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestRetryEmbedder_DoesNotRetryCancellation(t *testing.T) {
	inner := &flakyEmbedder{failures: 10, err: context.Canceled}
	e := NewRetry(inner, "openai", 5, time.Millisecond, nil)

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Embed() error = %v, want context.Canceled", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}
