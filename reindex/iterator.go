package reindex

import (
	"context"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// DefaultBatchSize is the default number of analyses fetched per page.
const DefaultBatchSize = storage.MaxPageSize

// RecordIterator pages through the completed analyses of one organization,
// or of every organization when none is given.
type RecordIterator struct {
	records        storage.AnalysisRepository
	organizationID string
	batchSize      int
}

// NewRecordIterator creates a new record iterator. batchSize is capped at
// storage.MaxPageSize.
func NewRecordIterator(records storage.AnalysisRepository, organizationID string, batchSize int) *RecordIterator {
	if batchSize <= 0 || batchSize > storage.MaxPageSize {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		records:        records,
		organizationID: organizationID,
		batchSize:      batchSize,
	}
}

func (it *RecordIterator) tenants(ctx context.Context) ([]string, error) {
	if it.organizationID != "" {
		return []string{it.organizationID}, nil
	}
	return it.records.ListTenants(ctx)
}

func (it *RecordIterator) filter(page int) storage.ListFilter {
	return storage.ListFilter{
		Status:    core.StatusCompleted,
		Page:      page,
		PageSize:  it.batchSize,
		SortBy:    "createdAt",
		SortOrder: storage.SortAsc,
	}
}

// Count returns the number of completed analyses the iterator will visit.
func (it *RecordIterator) Count(ctx context.Context) (int, error) {
	tenants, err := it.tenants(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, organizationID := range tenants {
		page, err := it.records.List(ctx, organizationID, it.filter(1))
		if err != nil {
			return 0, err
		}
		total += page.Total
	}
	return total, nil
}

// ForEach calls fn with each page of completed analyses, oldest first.
// Iteration stops on the first error from fn. Context cancellation is
// checked between pages.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.AnalysisRecord) error) error {
	tenants, err := it.tenants(ctx)
	if err != nil {
		return err
	}

	for _, organizationID := range tenants {
		for n := 1; ; n++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			page, err := it.records.List(ctx, organizationID, it.filter(n))
			if err != nil {
				return err
			}
			if len(page.Records) == 0 {
				break
			}
			if err := fn(page.Records); err != nil {
				return err
			}
			if n >= page.TotalPages {
				break
			}
		}
	}
	return ctx.Err()
}
