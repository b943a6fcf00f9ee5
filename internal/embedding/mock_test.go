package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider(384)

	a, err := p.Embed(context.Background(), "agents share a memory store")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, err := p.Embed(context.Background(), "agents share a memory store")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	if len(a) != 384 {
		t.Fatalf("expected 384 dimensions, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestMockProviderDistinctInputs(t *testing.T) {
	p := NewMockProvider(64)

	a, _ := p.Embed(context.Background(), "first fact")
	b, _ := p.Embed(context.Background(), "second fact")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different inputs to produce different vectors")
	}
}

func TestMockProviderUnitNorm(t *testing.T) {
	p := NewMockProvider(128)

	vec, _ := p.Embed(context.Background(), "normalized output")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-4 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
}
