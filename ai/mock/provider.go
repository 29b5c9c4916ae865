package mock

import "github.com/poiesic/docanalysis/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder and analyzer instances.
type MockProvider struct {
	embedder *MockEmbedder
	analyzer *MockAnalyzer
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockAnalyzer() to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder: NewMockEmbedder(),
		analyzer: NewMockAnalyzer(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
func NewMockProviderWithServices(embedder *MockEmbedder, analyzer *MockAnalyzer) ai.AIProvider {
	return &MockProvider{
		embedder: embedder,
		analyzer: analyzer,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Analyzer returns the mock analyzer.
func (p *MockProvider) Analyzer() ai.Analyzer {
	return p.analyzer
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockAnalyzer returns the underlying mock analyzer for test assertions.
func (p *MockProvider) GetMockAnalyzer() *MockAnalyzer {
	return p.analyzer
}
