// Package llmtest provides test doubles for the llm package interfaces.
package llmtest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jonathan/worktype-resolver/internal/llm"
	"github.com/jonathan/worktype-resolver/internal/trigram"
)

// MockClient is a func-field implementation of llm.Client that counts calls.
type MockClient struct {
	CompleteFunc func(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error)
	GetModelFunc func(tier llm.ModelTier) string
	CloseFunc    func() error

	calls atomic.Int64
	mu    sync.Mutex
	last  []llm.Message
}

// Complete records the call and delegates to CompleteFunc, returning "[]" when unset.
func (m *MockClient) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = append([]llm.Message(nil), messages...)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, opts)
	}
	return "[]", nil
}

// GetModel delegates to GetModelFunc.
func (m *MockClient) GetModel(tier llm.ModelTier) string {
	if m.GetModelFunc != nil {
		return m.GetModelFunc(tier)
	}
	return "mock-model"
}

// Close delegates to CloseFunc.
func (m *MockClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns how many times Complete has been called.
func (m *MockClient) Calls() int {
	return int(m.calls.Load())
}

// LastMessages returns the messages passed to the most recent Complete call.
func (m *MockClient) LastMessages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Message(nil), m.last...)
}

// MockEmbedder is a func-field implementation of llm.Embedder.
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	Dim       int

	calls atomic.Int64
}

// Embed delegates to EmbedFunc, returning a zero vector when unset.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return make([]float32, m.Dim), nil
}

// Dimensions returns Dim.
func (m *MockEmbedder) Dimensions() int {
	return m.Dim
}

// Close is a no-op.
func (m *MockEmbedder) Close() error {
	return nil
}

// Calls returns how many times Embed has been called.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}

// TrigramEmbedder embeds text as a binary indicator vector over a fixed trigram
// vocabulary, so the cosine of two embeddings is |A∩B| / sqrt(|A||B|) over their
// trigram sets. Trigrams outside the vocabulary are ignored; build the vocabulary
// from every string a test will embed.
type TrigramEmbedder struct {
	index map[string]int
}

// NewTrigramEmbedder builds the vocabulary from the trigrams of corpus.
func NewTrigramEmbedder(corpus ...string) *TrigramEmbedder {
	vocab := make(trigram.Set)
	for _, s := range corpus {
		for g := range trigram.Extract(s) {
			vocab[g] = struct{}{}
		}
	}

	keys := make([]string, 0, len(vocab))
	for g := range vocab {
		keys = append(keys, g)
	}
	sort.Strings(keys)

	index := make(map[string]int, len(keys))
	for i, g := range keys {
		index[g] = i
	}
	return &TrigramEmbedder{index: index}
}

// Embed returns the indicator vector of text's trigrams.
func (e *TrigramEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.index))
	for g := range trigram.Extract(text) {
		if i, ok := e.index[g]; ok {
			vec[i] = 1
		}
	}
	return vec, nil
}

// Dimensions returns the vocabulary size.
func (e *TrigramEmbedder) Dimensions() int {
	return len(e.index)
}

// Close is a no-op.
func (e *TrigramEmbedder) Close() error {
	return nil
}
