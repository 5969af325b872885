// Package mock provides a deterministic embeddings.Provider for tests. The
// vector of a text is a hash-seeded pseudo-random unit vector, so identical
// texts embed identically and similar texts do not.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/droman42/irene/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider generates hash-seeded vectors.
type Provider struct {
	// Dims is the vector dimensionality. Defaults to 16.
	Dims int

	// Err forces every call to fail.
	Err error

	// Fixed overrides generation for specific texts, for similarity
	// scenarios in tests.
	Fixed map[string][]float32
}

// New creates a 16-dimensional mock.
func New() *Provider {
	return &Provider{Dims: 16}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if vec, ok := p.Fixed[text]; ok {
		return vec, nil
	}
	return p.generate(text), nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) Dimensions() int {
	if p.Dims <= 0 {
		return 16
	}
	return p.Dims
}

func (p *Provider) ModelID() string { return "mock-embed" }

func (p *Provider) generate(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	dims := p.Dimensions()
	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= float32(norm)
	}
	return vec
}
