package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ChunkKind classifies a unit of extracted document text.
type ChunkKind string

const (
	ChunkKindParagraph ChunkKind = "paragraph"
	ChunkKindHeading   ChunkKind = "heading"
	ChunkKindListItem  ChunkKind = "list_item"
	ChunkKindTableCell ChunkKind = "table_cell"
)

// ListStyle distinguishes bulleted from numbered list items.
type ListStyle string

const (
	ListStyleBullet   ListStyle = "bullet"
	ListStyleNumbered ListStyle = "numbered"
)

// Chunk is a classified unit of document text. Chunks are produced once per
// parse pass and never mutated afterwards.
type Chunk struct {
	ID               string
	Content          string
	Kind             ChunkKind
	HeadingLevel     int       // 1-3 for headings, 0 otherwise
	ListStyle        ListStyle // set for list items only
	SourceDocumentID string
	PrecedingHeading string
	Position         int
}

// ChunkID builds the deterministic identifier of the chunk at position within a document.
func ChunkID(documentID string, position int) string {
	return documentID + ":" + strconv.Itoa(position)
}

// EmbeddingVector is the embedding of a single chunk.
type EmbeddingVector struct {
	ChunkID   string
	Values    []float32
	Dimension int
}

// VectorMetadata is stored alongside each vector in the index.
type VectorMetadata struct {
	Content          string    `json:"content"`
	Kind             ChunkKind `json:"kind"`
	HeadingLevel     int       `json:"headingLevel,omitempty"`
	SourceDocumentID string    `json:"sourceDocumentId"`
	OrganizationID   string    `json:"organizationId,omitempty"`
	PrecedingHeading string    `json:"precedingHeading,omitempty"`
	ChunkIndex       int       `json:"chunkIndex"`
}

// VectorRecord is the persisted form of a chunk embedding.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// NewVectorRecord pairs a chunk with its embedding.
func NewVectorRecord(organizationID string, chunk Chunk, values []float32) VectorRecord {
	return VectorRecord{
		ID:     ChunkID(chunk.SourceDocumentID, chunk.Position),
		Values: values,
		Metadata: VectorMetadata{
			Content:          chunk.Content,
			Kind:             chunk.Kind,
			HeadingLevel:     chunk.HeadingLevel,
			SourceDocumentID: chunk.SourceDocumentID,
			OrganizationID:   organizationID,
			PrecedingHeading: chunk.PrecedingHeading,
			ChunkIndex:       chunk.Position,
		},
	}
}

// DocumentType is the business category of a submitted document.
type DocumentType string

const (
	DocumentTypeProjectProposal DocumentType = "PROJECT_PROPOSAL"
	DocumentTypeRequirements    DocumentType = "REQUIREMENTS"
	DocumentTypeStatementOfWork DocumentType = "STATEMENT_OF_WORK"
	DocumentTypeContract        DocumentType = "CONTRACT"
	DocumentTypeBusinessPlan    DocumentType = "BUSINESS_PLAN"
	DocumentTypeReport          DocumentType = "REPORT"
	DocumentTypeOther           DocumentType = "OTHER"
)

// DocumentTypes lists every accepted document type.
var DocumentTypes = []DocumentType{
	DocumentTypeProjectProposal,
	DocumentTypeRequirements,
	DocumentTypeStatementOfWork,
	DocumentTypeContract,
	DocumentTypeBusinessPlan,
	DocumentTypeReport,
	DocumentTypeOther,
}

// AnalysisDepth controls how thorough the language model analysis is.
type AnalysisDepth string

const (
	DepthBasic         AnalysisDepth = "basic"
	DepthDetailed      AnalysisDepth = "detailed"
	DepthComprehensive AnalysisDepth = "comprehensive"
)

// ConfidenceLevel buckets a confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// LevelForScore maps a confidence score in [0,1] onto a level.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.7:
		return ConfidenceHigh
	case score >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ProcessingOptions are caller-supplied knobs recorded with the job.
type ProcessingOptions struct {
	Depth         AnalysisDepth `json:"depth"`
	ExtractFields []string      `json:"extractFields,omitempty"`
	SkipIndexing  bool          `json:"skipIndexing,omitempty"`
}

// Stage is one step of the pipeline.
type Stage string

const (
	StageParse   Stage = "parse"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
	StageAnalyze Stage = "analyze"
)

// ServiceKind names an external collaborator.
type ServiceKind string

const (
	ServiceEmbedding   ServiceKind = "embedding"
	ServiceVectorIndex ServiceKind = "vector_index"
	ServiceLLM         ServiceKind = "llm"
)

// CallStatus is the outcome of an external service call.
type CallStatus string

const (
	CallSuccess     CallStatus = "success"
	CallError       CallStatus = "error"
	CallSkipped     CallStatus = "skipped"
	CallUnavailable CallStatus = "unavailable"
)

// ExternalServiceCall records one round trip to an external collaborator.
type ExternalServiceCall struct {
	ID        string        `json:"id"`
	Service   ServiceKind   `json:"service"`
	Operation string        `json:"operation"`
	Status    CallStatus    `json:"status"`
	Duration  time.Duration `json:"duration"`
	Tokens    int           `json:"tokens,omitempty"`
	Cost      float64       `json:"cost,omitempty"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

// AuditEntry is an append-only history item of an analysis record.
type AuditEntry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Action     string    `json:"action"`
	FromStatus Status    `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus,omitempty"`
	Stage      Stage     `json:"stage,omitempty"`
	Message    string    `json:"message,omitempty"`
	Actor      string    `json:"actor,omitempty"`
}

// ErrorKind is the taxonomy bucket of a recorded failure.
type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "validation"
	ErrorKindStage            ErrorKind = "stage"
	ErrorKindProviderDegraded ErrorKind = "provider_degraded"
	ErrorKindTenantLimit      ErrorKind = "tenant_limit"
)

// ErrorDetails describes the most recent failure of a job.
type ErrorDetails struct {
	Kind       ErrorKind `json:"kind"`
	Stage      Stage     `json:"stage,omitempty"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	OccurredAt time.Time `json:"occurredAt"`
}

// IndexStatus reports what happened to a document's vectors.
type IndexStatus string

const (
	IndexStatusIndexed       IndexStatus = "indexed"
	IndexStatusSkipped       IndexStatus = "skipped"
	IndexStatusNotConfigured IndexStatus = "not_configured"
)

// RecordMetadata holds bookkeeping that is not part of the analysis result.
type RecordMetadata struct {
	ErrorDetails         *ErrorDetails         `json:"errorDetails,omitempty"`
	ExternalServiceCalls []ExternalServiceCall `json:"externalServiceCalls,omitempty"`
	ChunkCount           int                   `json:"chunkCount,omitempty"`
	VectorCount          int                   `json:"vectorCount,omitempty"`
	IndexStatus          IndexStatus           `json:"indexStatus,omitempty"`
}

// AnalysisRecord is the durable state of one document analysis job.
// OrganizationID never changes after creation.
type AnalysisRecord struct {
	ID                string
	OrganizationID    string
	UserID            string
	DocumentName      string
	DocumentHash      string
	DocumentType      DocumentType
	DocumentSize      int64
	Status            Status
	RetryCount        int
	MaxRetries        int
	NextRetryAt       *time.Time
	ConfidenceScore   *float64
	ConfidenceLevel   ConfidenceLevel
	AnalysisResult    *StructuredAnalysis
	ProcessingOptions ProcessingOptions
	Metadata          RecordMetadata
	AuditTrail        []AuditEntry
	Cost              float64
	CurrentStage      Stage
	Progress          int
	CancelRequested   bool
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// HasError reports whether the record carries error details.
func (r *AnalysisRecord) HasError() bool {
	return r.Metadata.ErrorDetails != nil
}

// DocumentHash digests a document's content, name and size with BLAKE2b-256.
func DocumentHash(name string, content []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(name))
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(content)))
	h.Write(size[:])
	return hex.EncodeToString(h.Sum(nil))
}
