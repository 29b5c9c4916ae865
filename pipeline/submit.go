package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/docanalysis/chunker"
	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// SubmitRequest is a document submitted for analysis.
type SubmitRequest struct {
	Data           []byte
	Filename       string
	DocumentType   core.DocumentType  // defaults to OTHER
	Depth          core.AnalysisDepth // defaults to detailed
	ExtractFields  []string
	OrganizationID string
	UserID         string
	SkipIndexing   bool
}

// SubmitResponse identifies an admitted job.
type SubmitResponse struct {
	JobID  string
	Status core.Status
}

func (o *Orchestrator) validate(req *SubmitRequest) error {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return core.NewValidationError("organizationId", "is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return core.NewValidationError("userId", "is required")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return core.NewValidationError("filename", "is required")
	}
	if !chunker.Supported(req.Filename) {
		return &core.ValidationError{
			Field:  "filename",
			Reason: fmt.Sprintf("unsupported file type, accepted: %s", strings.Join(chunker.Extensions(), ", ")),
			Err:    chunker.ErrUnsupportedFormat,
		}
	}
	if len(req.Data) == 0 {
		return core.NewValidationError("data", "file is empty")
	}
	if int64(len(req.Data)) > o.config.MaxDocumentSize {
		return core.NewValidationError("data",
			fmt.Sprintf("file is %d bytes, limit is %d", len(req.Data), o.config.MaxDocumentSize))
	}

	if req.DocumentType == "" {
		req.DocumentType = core.DocumentTypeOther
	}
	if err := core.ValidateDocumentType(req.DocumentType); err != nil {
		return err
	}
	if req.Depth == "" {
		req.Depth = core.DepthDetailed
	}
	return core.ValidateProcessingOptions(core.ProcessingOptions{
		Depth:         req.Depth,
		ExtractFields: req.ExtractFields,
	})
}

// Submit validates a document, admits it against the organization's limits
// and enqueues it. The returned job is PENDING.
//
// Errors are returned synchronously and nothing is stored:
//   - *core.ValidationError for bad input, including ErrDuplicateDocument
//   - *core.TenantLimitError when the concurrency or daily cost gate is closed
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := o.validate(&req); err != nil {
		return nil, err
	}

	hash := core.DocumentHash(req.Filename, req.Data)
	now := o.now().UTC()

	lock := o.tenantLock(req.OrganizationID)
	lock.Lock()
	defer lock.Unlock()

	active, err := o.records.FindActiveByHash(ctx, req.OrganizationID, hash)
	switch {
	case err == nil:
		return nil, &core.ValidationError{
			Field:  "data",
			Reason: fmt.Sprintf("identical document is %s as job %s", strings.ToLower(string(active.Status)), active.ID),
			Err:    ErrDuplicateDocument,
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	record := &core.AnalysisRecord{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		DocumentName:   req.Filename,
		DocumentHash:   hash,
		DocumentType:   req.DocumentType,
		DocumentSize:   int64(len(req.Data)),
		Status:         core.StatusPending,
		MaxRetries:     o.config.MaxRetries,
		ProcessingOptions: core.ProcessingOptions{
			Depth:         req.Depth,
			ExtractFields: req.ExtractFields,
			SkipIndexing:  req.SkipIndexing,
		},
		CreatedAt: now,
		AuditTrail: []core.AuditEntry{{
			At:       now,
			Action:   "submitted",
			ToStatus: core.StatusPending,
			Actor:    req.UserID,
		}},
	}

	// Bytes go in first so a worker never sees a record without its document.
	if err := o.documents.Put(ctx, record.ID, req.Data); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	limits := storage.AdmissionLimits{
		MaxConcurrentJobs: o.config.MaxConcurrentJobs,
		DailyCostLimit:    o.config.DailyCostLimit,
	}
	if err := o.records.Admit(ctx, record, limits); err != nil {
		if delErr := o.documents.Delete(ctx, record.ID); delErr != nil {
			o.logger.Warn("error removing rejected document", "job_id", record.ID, "err", delErr)
		}
		var limitErr *core.TenantLimitError
		if errors.As(err, &limitErr) {
			o.logger.Info("submission rejected", "organization_id", req.OrganizationID,
				"limit", limitErr.Limit, "current", limitErr.Current, "max", limitErr.Max)
		}
		return nil, err
	}

	job := storage.Job{ID: record.ID, OrganizationID: record.OrganizationID, EnqueuedAt: now}
	if err := o.queue.Enqueue(ctx, job, now); err != nil {
		// The record is durable; the recovery sweep enqueues it later.
		o.logger.Error("error enqueueing job", "job_id", record.ID, "err", err)
	}

	o.logger.Info("analysis submitted", "job_id", record.ID, "organization_id", record.OrganizationID,
		"document", record.DocumentName, "size", record.DocumentSize)
	return &SubmitResponse{JobID: record.ID, Status: record.Status}, nil
}
