package search

import "github.com/poiesic/docanalysis/storage"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(organizationID, query string)
	AfterEmbedding(dimension int)
	AfterSemanticSearch(matches []storage.VectorMatch)
	VerbatimHit(result *Result)
	HeadingHit(result *Result)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                           {}
func (n *noopMonitor) AfterEmbedding(_ int)                        {}
func (n *noopMonitor) AfterSemanticSearch(_ []storage.VectorMatch) {}
func (n *noopMonitor) VerbatimHit(_ *Result)                       {}
func (n *noopMonitor) HeadingHit(_ *Result)                        {}
func (n *noopMonitor) Finish(_ []*Result)                          {}
