package api

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsgraph/internal/content"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/queue"
	"newsgraph/internal/stage"
	"newsgraph/internal/workflow"
)

// Item converts the request to a pipeline item. An empty id is replaced by a
// generated one.
func (r ArticleRequest) Item() *content.Item {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return &content.Item{
		ID:       id,
		Kind:     content.KindArticle,
		Headline: r.Headline,
		Text:     r.Text,
		Markup:   r.Markup,
		Source:   r.Source.content(),
		Metadata: r.Metadata,
	}
}

// Item converts the request to a pipeline item. The item id defaults to the
// fragment id.
func (r FragmentRequest) Item() *content.Item {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = strings.TrimSpace(r.FragmentID)
	}
	return &content.Item{
		ID:       id,
		Kind:     content.KindFragment,
		Headline: r.Headline,
		Text:     r.Text,
		Markup:   r.Markup,
		Source:   r.Source.content(),
		Metadata: r.Metadata,
		Fragment: &content.Fragment{
			ParentID:   strings.TrimSpace(r.ParentID),
			FragmentID: strings.TrimSpace(r.FragmentID),
			Sequence:   r.Sequence,
			Total:      r.Total,
		},
	}
}

func (s Source) content() content.Source {
	return content.Source{
		URL:         strings.TrimSpace(s.URL),
		Outlet:      s.Outlet,
		Country:     s.Country,
		MediaType:   s.MediaType,
		Author:      s.Author,
		Section:     s.Section,
		Tags:        s.Tags,
		PublishedAt: s.PublishedAt,
		Language:    s.Language,
	}
}

// FromQueueItem converts a lifecycle record into its transport form.
func FromQueueItem(item *queue.Item) ItemStatus {
	if item == nil {
		return ItemStatus{}
	}
	return ItemStatus{
		ID:             item.ID,
		Kind:           item.Kind,
		DocumentID:     item.DocumentID,
		Status:         string(item.Status),
		Classification: item.Classification,
		ErrorMessage:   item.ErrorMessage,
		Warnings:       item.Warnings,
		RequestID:      item.RequestID,
		CreatedAt:      formatTime(item.CreatedAt),
		UpdatedAt:      formatTime(item.UpdatedAt),
		StartedAt:      formatTimePtr(item.StartedAt),
		FinishedAt:     formatTimePtr(item.FinishedAt),
	}
}

// FromQueueItems converts a slice of lifecycle records.
func FromQueueItems(items []*queue.Item) []ItemStatus {
	out := make([]ItemStatus, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromWorkflowHealth converts the controller health surface.
func FromWorkflowHealth(h workflow.Health) PipelineHealth {
	phases := make(map[string]PhaseErrors, len(h.PhaseErrors))
	for name, counts := range h.PhaseErrors {
		phases[name] = PhaseErrors{Hard: counts.Hard, Soft: counts.Soft}
	}
	return PipelineHealth{
		Accepting:     h.Accepting,
		Running:       h.Running,
		QueueDepth:    h.QueueDepth,
		QueueCapacity: h.QueueCapacity,
		WorkersTotal:  h.WorkersTotal,
		WorkersBusy:   h.WorkersBusy,
		Utilization:   h.Utilization,
		Totals:        h.Totals,
		Interrupted:   h.Interrupted,
		PhaseErrors:   phases,
		StartedAt:     formatTimePtr(h.StartedAt),
	}
}

// FromStageHealth converts readiness records, keeping their order.
func FromStageHealth(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromQueueStats converts status counts to string keys.
func FromQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromKnowledgeStats converts knowledge store row counts.
func FromKnowledgeStats(stats knowledge.Stats) *KnowledgeStats {
	return &KnowledgeStats{
		Documents:     stats.Documents,
		Facts:         stats.Facts,
		Entities:      stats.Entities,
		Quotes:        stats.Quotes,
		Data:          stats.Data,
		Relationships: stats.Relationships,
		Failures:      stats.Failures,
	}
}

// FromFailure converts a persistent-error record, omitting the stored item
// body and diagnostics.
func FromFailure(rec knowledge.FailureRecord) Failure {
	return Failure{
		ID:             rec.ID,
		ItemID:         rec.ItemID,
		DocumentID:     rec.DocumentID,
		Classification: rec.Classification,
		ErrorMessage:   rec.ErrorMessage,
		CreatedAt:      formatTime(rec.CreatedAt),
		RetriedAt:      formatTimePtr(rec.RetriedAt),
		RetryCount:     rec.RetryCount,
	}
}

// FromFailures converts a slice of persistent-error records.
func FromFailures(records []knowledge.FailureRecord) []Failure {
	out := make([]Failure, 0, len(records))
	for _, rec := range records {
		out = append(out, FromFailure(rec))
	}
	return out
}

// SortedPhaseNames returns the phase keys of a health payload in a stable order.
func SortedPhaseNames(phases map[string]PhaseErrors) []string {
	names := make([]string, 0, len(phases))
	for name := range phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
