package linking

import (
	"fmt"
	"strings"
	"time"

	"newsgraph/internal/content"
)

var boundLayouts = []struct {
	layout string
	step   func(time.Time) time.Time
}{
	{time.RFC3339, nil},
	{"2006-01-02T15:04:05", nil},
	{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
}

// parseBound parses one bound and returns the first and last instant of the
// period it names. Instants parse to themselves.
func parseBound(value string) (time.Time, time.Time, error) {
	value = strings.TrimSpace(value)
	for _, candidate := range boundLayouts {
		parsed, err := time.Parse(candidate.layout, value)
		if err != nil {
			continue
		}
		parsed = parsed.UTC()
		if candidate.step == nil {
			return parsed, parsed, nil
		}
		return parsed, candidate.step(parsed).Add(-time.Second), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// NormalizeRange turns a raw "start" or "start/end" expression into a
// TimeRange. Empty bounds stay open. A single value spans its whole period,
// so "2026-03" covers the month.
func NormalizeRange(raw string) (content.TimeRange, error) {
	out := content.TimeRange{Raw: raw}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	startText, endText, ranged := strings.Cut(raw, "/")
	if !ranged {
		first, last, err := parseBound(raw)
		if err != nil {
			return out, err
		}
		out.Start, out.End = &first, &last
		return out, nil
	}
	if strings.TrimSpace(startText) != "" {
		first, _, err := parseBound(startText)
		if err != nil {
			return out, err
		}
		out.Start = &first
	}
	if strings.TrimSpace(endText) != "" {
		_, last, err := parseBound(endText)
		if err != nil {
			return out, err
		}
		out.End = &last
	}
	if out.Start != nil && out.End != nil && out.End.Before(*out.Start) {
		return content.TimeRange{Raw: out.Raw}, fmt.Errorf("range %q ends before it starts", raw)
	}
	return out, nil
}
