// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder, MockAnalyzer and MockProvider let pipeline tests run without
// external AI services. Behavior is injected through function fields and
// calls are counted for assertions.
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns deterministic unit vectors derived from a text hash
//   - MockAnalyzer: returns a complete analysis with confidence 0.7
//   - MockProvider: aggregates a mock embedder and analyzer
package mock
