package queue

import (
	"time"
)

// Status represents the lifecycle of a pipeline item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusPhase1     Status = "phase-1"
	StatusPhase2     Status = "phase-2"
	StatusPhase3     Status = "phase-3"
	StatusPhase4     Status = "phase-4"
	StatusPhase45    Status = "phase-4.5"
	StatusPhase5     Status = "phase-5"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDiscarded  Status = "discarded"
)

// InterruptedReason is the error message set when items are failed due to shutdown.
const InterruptedReason = "interrupted by shutdown"

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusPhase1,
	StatusPhase2,
	StatusPhase3,
	StatusPhase4,
	StatusPhase45,
	StatusPhase5,
	StatusCompleted,
	StatusFailed,
	StatusDiscarded,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = []Status{
	StatusProcessing,
	StatusPhase1,
	StatusPhase2,
	StatusPhase3,
	StatusPhase4,
	StatusPhase45,
	StatusPhase5,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	_, ok := statusSet[status]
	return status, ok
}

// IsProcessing reports whether the status denotes in-flight work.
func (s Status) IsProcessing() bool {
	for _, candidate := range processingStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the item has reached a final status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDiscarded
}

// Item is the persisted lifecycle record of a submitted article or fragment.
type Item struct {
	ID             string
	Kind           string
	DocumentID     string
	Status         Status
	Classification string
	ErrorMessage   string
	Warnings       []string
	ItemJSON       string
	RequestID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// HealthSummary describes aggregated counts per lifecycle group.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Discarded  int
}

// DatabaseHealth captures diagnostic information about the status database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}
