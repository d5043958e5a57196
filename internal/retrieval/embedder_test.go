package retrieval

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedClient struct {
	fail bool
}

func (f *fakeEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("endpoint down")
	}
	// Deterministic vector: length of the text in the first component.
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbedBatch(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	// Order must match the input even though embedding runs concurrently.
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vector %d first component = %f, want %f", i, vecs[i][0], want)
		}
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{})

	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
}

func TestEmbedBatchPropagatesFailure(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{fail: true})

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("EmbedBatch succeeded with a failing client")
	}
}
