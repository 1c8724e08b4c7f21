package testutil

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbedder is a deterministic Embedder for tests. Identical texts map to
// identical vectors, so similarity ordering is stable across runs without
// calling a real embedding backend.
type MockEmbedder struct {
	// Dimension of produced vectors. Defaults to 768 when zero.
	Dimension int

	// Err, when set, is returned by every Embed call.
	Err error

	mu    sync.Mutex
	calls int
}

// Embed produces one pseudo-random vector per text, seeded by the text's hash.
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	dim := m.Dimension
	if dim == 0 {
		dim = 768
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum64()

		vec := make([]float32, dim)
		for j := range vec {
			// xorshift64 keeps the generator dependency-free
			seed ^= seed << 13
			seed ^= seed >> 7
			seed ^= seed << 17
			vec[j] = float32(int64(seed%2000)-1000) / 1000.0
		}
		out[i] = vec
	}
	return out, nil
}

// Calls reports how many times Embed was invoked.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
