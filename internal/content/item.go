package content

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"newsgraph/internal/services"
)

// Kind distinguishes full articles from document fragments.
type Kind string

const (
	KindArticle  Kind = "article"
	KindFragment Kind = "fragment"
)

// Source carries provenance metadata for an item.
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

// Fragment links a document segment to its parent document.
type Fragment struct {
	ParentID   string `json:"parent_id"`
	FragmentID string `json:"fragment_id"`
	Sequence   int    `json:"sequence"`
	Total      int    `json:"total"`
}

// Item is the unit of work driven through the pipeline.
type Item struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Headline   string            `json:"headline,omitempty"`
	Text       string            `json:"text"`
	Markup     string            `json:"markup,omitempty"`
	Source     Source            `json:"source"`
	Fragment   *Fragment         `json:"fragment,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// IsFragment reports whether the item is a document fragment.
func (i *Item) IsFragment() bool {
	return i != nil && i.Kind == KindFragment
}

// DocumentID is the identifier facts are linked to: the parent document for
// fragments, the item itself for articles.
func (i *Item) DocumentID() string {
	if i.IsFragment() && i.Fragment != nil {
		return i.Fragment.ParentID
	}
	return i.ID
}

// FragmentID returns the fragment identifier, or empty for articles.
func (i *Item) FragmentID() string {
	if i.IsFragment() && i.Fragment != nil {
		return i.Fragment.FragmentID
	}
	return ""
}

// ReferenceDate is the day used for contextual trend lookups.
func (i *Item) ReferenceDate() time.Time {
	if i.Source.PublishedAt != nil && !i.Source.PublishedAt.IsZero() {
		return i.Source.PublishedAt.UTC()
	}
	if !i.ReceivedAt.IsZero() {
		return i.ReceivedAt.UTC()
	}
	return time.Now().UTC()
}

// Validate rejects items that cannot enter Phase 1.
func (i *Item) Validate() error {
	if i == nil {
		return services.Wrap(services.ErrValidation, "submit", "validate", "item required", nil)
	}
	fail := func(msg string) error {
		return services.Wrap(services.ErrValidation, "submit", "validate", msg, nil)
	}
	if strings.TrimSpace(i.ID) == "" {
		return fail("id is required")
	}
	if strings.TrimSpace(i.Text) == "" && strings.TrimSpace(i.Markup) == "" {
		return fail("text or markup is required")
	}
	switch i.Kind {
	case KindArticle:
		if i.Fragment != nil {
			return fail("articles cannot carry fragment metadata")
		}
		if raw := strings.TrimSpace(i.Source.URL); raw != "" {
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fail(fmt.Sprintf("source url %q is not absolute", raw))
			}
		}
	case KindFragment:
		f := i.Fragment
		if f == nil {
			return fail("fragment metadata is required")
		}
		if strings.TrimSpace(f.ParentID) == "" {
			return fail("fragment parent_id is required")
		}
		if strings.TrimSpace(f.FragmentID) == "" {
			return fail("fragment fragment_id is required")
		}
		if f.Total <= 0 {
			return fail("fragment total must be positive")
		}
		if f.Sequence <= 0 || f.Sequence > f.Total {
			return fail(fmt.Sprintf("fragment sequence %d outside 1..%d", f.Sequence, f.Total))
		}
	default:
		return fail(fmt.Sprintf("unknown kind %q", i.Kind))
	}
	return nil
}
