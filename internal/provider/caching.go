package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// CachingProvider memoizes embeddings of an inner provider. Completions pass
// straight through.
type CachingProvider struct {
	inner Provider
	cache *ristretto.Cache[string, []float32]
}

// NewCachingProvider wraps inner with an embedding cache bounded to maxBytes.
func NewCachingProvider(inner Provider, maxBytes int64) (*CachingProvider, error) {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachingProvider{inner: inner, cache: cache}, nil
}

func (p *CachingProvider) Name() string {
	return p.inner.Name()
}

func (p *CachingProvider) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	return p.inner.Complete(ctx, messages, tools)
}

func (p *CachingProvider) CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error) {
	return p.inner.CompleteStructured(ctx, messages, schema)
}

func (p *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(p.inner.Name(), text)
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec, int64(len(vec)*4))
	p.cache.Wait()
	return vec, nil
}

// Close releases the cache.
func (p *CachingProvider) Close() {
	p.cache.Close()
}

func embeddingKey(provider, text string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
