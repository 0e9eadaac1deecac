package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// FakeProvider is a deterministic embedding provider for tests. Vectors are
// derived from the text content, so equal texts always embed identically and
// cosine ordering is stable across runs.
type FakeProvider struct {
	// Dim is the vector dimensionality. Defaults to 8.
	Dim int
	// FailFirst makes the first N Embed calls return an error.
	FailFirst int

	mu    sync.Mutex
	calls int
	texts []string
}

// Embed returns one deterministic vector per text.
func (p *FakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.texts = append(p.texts, texts...)
	if p.calls <= p.FailFirst {
		return nil, fmt.Errorf("injected failure on call %d", p.calls)
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimension reports the configured dimensionality.
func (p *FakeProvider) Dimension() int {
	if p.Dim > 0 {
		return p.Dim
	}
	return 8
}

// Calls reports how many Embed calls were made.
func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// EmbeddedTexts returns every text passed to Embed, in call order.
func (p *FakeProvider) EmbeddedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *FakeProvider) vector(text string) []float32 {
	dim := p.Dimension()
	vec := make([]float32, dim)

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	// Simple xorshift over the text hash keeps equal texts identical and
	// different texts spread out.
	for i := range vec {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float32(seed%1000)/1000 - 0.5
	}
	return vec
}
