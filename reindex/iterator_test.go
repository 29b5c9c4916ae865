package reindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/docanalysis/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIterator_ForEach(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		f.addAnalysis(t, "org1", fmt.Sprintf("doc-%d", i), budget, core.StatusCompleted, core.IndexStatusIndexed)
	}
	f.addAnalysis(t, "org1", "pending", budget, core.StatusPending, "")
	f.addAnalysis(t, "org2", "doc-6", budget, core.StatusCompleted, core.IndexStatusIndexed)

	it := NewRecordIterator(f.records, "", 2)

	total, err := it.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, total)

	var sizes []int
	var ids []string
	err = it.ForEach(context.Background(), func(records []*core.AnalysisRecord) error {
		sizes = append(sizes, len(records))
		for _, record := range records {
			ids = append(ids, record.ID)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1, 1}, sizes, "pages do not span organizations")
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5", "doc-6"}, ids, "oldest first")
}

func TestRecordIterator_SingleOrganization(t *testing.T) {
	f := newFixture(t)
	f.addAnalysis(t, "org1", "doc-1", budget, core.StatusCompleted, core.IndexStatusIndexed)
	f.addAnalysis(t, "org2", "doc-2", budget, core.StatusCompleted, core.IndexStatusIndexed)

	it := NewRecordIterator(f.records, "org2", 10)
	var ids []string
	err := it.ForEach(context.Background(), func(records []*core.AnalysisRecord) error {
		for _, record := range records {
			assert.Equal(t, "org2", record.OrganizationID)
			ids = append(ids, record.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, ids)
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		f.addAnalysis(t, "org1", fmt.Sprintf("doc-%d", i), budget, core.StatusCompleted, core.IndexStatusIndexed)
	}

	boom := errors.New("boom")
	calls := 0
	err := NewRecordIterator(f.records, "", 1).ForEach(context.Background(), func([]*core.AnalysisRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_BatchSizeBounds(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DefaultBatchSize, NewRecordIterator(f.records, "", 0).batchSize)
	assert.Equal(t, DefaultBatchSize, NewRecordIterator(f.records, "", 1000).batchSize)
	assert.Equal(t, 7, NewRecordIterator(f.records, "", 7).batchSize)
}
