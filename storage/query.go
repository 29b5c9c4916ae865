package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/docanalysis/core"
)

// Pagination defaults
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AdmissionLimits are the per-organization gates checked by Admit.
// Zero disables a gate.
type AdmissionLimits struct {
	MaxConcurrentJobs int
	DailyCostLimit    float64
}

// StatusUpdate carries the data written together with a status change.
type StatusUpdate struct {
	// Record, when set, has its mutable fields written in the same
	// statement as the status.
	Record  *core.AnalysisRecord
	Stage   core.Stage
	Message string
	Actor   string
}

// SortFields maps the sortable field names onto their columns.
var SortFields = map[string]string{
	"createdAt":       "created_at",
	"updatedAt":       "updated_at",
	"confidenceScore": "confidence_score",
	"documentName":    "document_name",
	"documentSize":    "document_size",
	"status":          "status",
	"cost":            "cost",
}

// Sort orders
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilter selects and orders records for List. Zero values do not filter.
type ListFilter struct {
	Status          core.Status
	Depth           core.AnalysisDepth
	ConfidenceLevel core.ConfidenceLevel
	DocumentType    core.DocumentType
	CreatedAfter    time.Time
	CreatedBefore   time.Time
	MinConfidence   *float64
	MaxCost         *float64
	HasErrors       *bool

	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Normalize applies pagination and sort defaults and validates the filter.
func (f ListFilter) Normalize() (ListFilter, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = DefaultPageSize
	case f.PageSize > MaxPageSize:
		f.PageSize = MaxPageSize
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if _, ok := SortFields[f.SortBy]; !ok {
		return f, fmt.Errorf("%w: %q", ErrInvalidSortField, f.SortBy)
	}
	f.SortOrder = strings.ToLower(f.SortOrder)
	switch f.SortOrder {
	case "":
		f.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return f, fmt.Errorf("%w: sort order %q", ErrInvalidQuery, f.SortOrder)
	}
	if f.Status != "" && !f.Status.IsValid() {
		return f, fmt.Errorf("%w: status %q", ErrInvalidQuery, f.Status)
	}
	if !f.CreatedAfter.IsZero() && !f.CreatedBefore.IsZero() && f.CreatedBefore.Before(f.CreatedAfter) {
		return f, fmt.Errorf("%w: created range is inverted", ErrInvalidQuery)
	}
	return f, nil
}

// Offset returns the number of records skipped before the page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Page is one page of List results. Records carry no audit trail or call log.
type Page struct {
	Records    []*core.AnalysisRecord
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Stats aggregates an organization's records.
type Stats struct {
	Total                 int
	ByStatus              map[core.Status]int
	ByDepth               map[core.AnalysisDepth]int
	ByDocumentType        map[core.DocumentType]int
	ByConfidenceLevel     map[core.ConfidenceLevel]int
	AverageProcessingTime time.Duration
	TotalCost             float64
	// SuccessRate is completed records over finished (completed or failed) records.
	SuccessRate float64
	// ErrorRate is records carrying error details over all records.
	ErrorRate float64
}

// VectorFilter restricts Search. Zero values do not filter.
type VectorFilter struct {
	DocumentID     string
	OrganizationID string
	Kind           core.ChunkKind
	HeadingLevel   int
	MinScore       float32
}

// Matches reports whether metadata passes the equality filters.
func (f VectorFilter) Matches(m core.VectorMetadata) bool {
	if f.DocumentID != "" && m.SourceDocumentID != f.DocumentID {
		return false
	}
	if f.OrganizationID != "" && m.OrganizationID != f.OrganizationID {
		return false
	}
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	if f.HeadingLevel != 0 && m.HeadingLevel != f.HeadingLevel {
		return false
	}
	return true
}

// VectorMatch is a search hit.
type VectorMatch struct {
	Record core.VectorRecord
	Score  float32
}

// UpsertResult reports the outcome of an Upsert.
type UpsertResult struct {
	Stored        int
	NotConfigured bool
}

// Job is a queued unit of work: one analysis record.
type Job struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

// Delivery is a leased job.
type Delivery struct {
	Job         Job
	AvailableAt time.Time
	LeaseUntil  time.Time
}
