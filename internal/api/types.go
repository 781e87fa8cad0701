package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Source mirrors content.Source.
type Source struct {
	URL         string     `json:"url,omitempty"`
	Outlet      string     `json:"outlet,omitempty"`
	Country     string     `json:"country,omitempty"`
	MediaType   string     `json:"media_type,omitempty"`
	Author      string     `json:"author,omitempty"`
	Section     string     `json:"section,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Language    string     `json:"language,omitempty"`
}

// ArticleRequest submits a whole article.
type ArticleRequest struct {
	ID       string            `json:"id,omitempty"`
	Headline string            `json:"headline,omitempty"`
	Text     string            `json:"text,omitempty"`
	Markup   string            `json:"markup,omitempty"`
	Source   Source            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FragmentRequest submits one piece of a long document. Source metadata is
// inherited from the parent by the caller.
type FragmentRequest struct {
	ID         string            `json:"id,omitempty"`
	ParentID   string            `json:"parent_id"`
	FragmentID string            `json:"fragment_id"`
	Sequence   int               `json:"sequence"`
	Total      int               `json:"total"`
	Headline   string            `json:"headline,omitempty"`
	Text       string            `json:"text,omitempty"`
	Markup     string            `json:"markup,omitempty"`
	Source     Source            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	ItemID    string `json:"item_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// ItemStatus describes an item lifecycle record.
type ItemStatus struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	DocumentID     string   `json:"document_id,omitempty"`
	Status         string   `json:"status"`
	Classification string   `json:"classification,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
	StartedAt      string   `json:"started_at,omitempty"`
	FinishedAt     string   `json:"finished_at,omitempty"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item ItemStatus `json:"item"`
}

// ItemListResponse wraps a collection of items.
type ItemListResponse struct {
	Items []ItemStatus `json:"items"`
}

// PhaseErrors counts hard and soft failures per phase.
type PhaseErrors struct {
	Hard int `json:"hard"`
	Soft int `json:"soft"`
}

// PipelineHealth mirrors the controller health surface.
type PipelineHealth struct {
	Accepting     bool                   `json:"accepting"`
	Running       bool                   `json:"running"`
	QueueDepth    int                    `json:"queue_depth"`
	QueueCapacity int                    `json:"queue_capacity"`
	WorkersTotal  int                    `json:"workers_total"`
	WorkersBusy   int                    `json:"workers_busy"`
	Utilization   float64                `json:"utilization"`
	Totals        map[string]int         `json:"totals"`
	Interrupted   int                    `json:"interrupted"`
	PhaseErrors   map[string]PhaseErrors `json:"phase_errors"`
	StartedAt     string                 `json:"started_at,omitempty"`
}

// StageHealth mirrors readiness reporting for phases and backing services.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// KnowledgeStats carries row counts from the knowledge store.
type KnowledgeStats struct {
	Documents     int `json:"documents"`
	Facts         int `json:"facts"`
	Entities      int `json:"entities"`
	Quotes        int `json:"quotes"`
	Data          int `json:"data"`
	Relationships int `json:"relationships"`
	Failures      int `json:"failures"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Pipeline   PipelineHealth  `json:"pipeline"`
	Stages     []StageHealth   `json:"stages"`
	Services   []StageHealth   `json:"services"`
	QueueStats map[string]int  `json:"queue_stats"`
	Knowledge  *KnowledgeStats `json:"knowledge,omitempty"`
}

// Failure describes a persistent-error store record.
type Failure struct {
	ID             int64  `json:"id"`
	ItemID         string `json:"item_id"`
	DocumentID     string `json:"document_id,omitempty"`
	Classification string `json:"classification"`
	ErrorMessage   string `json:"error_message"`
	CreatedAt      string `json:"created_at"`
	RetriedAt      string `json:"retried_at,omitempty"`
	RetryCount     int    `json:"retry_count"`
}

// FailureListResponse wraps failure records.
type FailureListResponse struct {
	Failures []Failure `json:"failures"`
}

// RetryResponse acknowledges a re-enqueued failure.
type RetryResponse struct {
	FailureID int64          `json:"failure_id"`
	Submitted SubmitResponse `json:"submitted"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error          string `json:"error"`
	Classification string `json:"classification,omitempty"`
}
