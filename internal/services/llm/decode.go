package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const snippetRunes = 160

// DecodeLLMJSON decodes a model reply into target. When the reply is not
// plain JSON it makes one repair pass: strip a Markdown code fence, then
// keep the span from the first opening brace or bracket to its last closer.
func DecodeLLMJSON(content string, target any) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(text), target)
	if err == nil {
		return nil
	}
	repaired := jsonSpan(unfence(text))
	if repaired == "" || repaired == text {
		return fmt.Errorf("%w (payload snippet: %s)", err, snippet(text))
	}
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("%w (repaired payload snippet: %s)", err, snippet(repaired))
	}
	return nil
}

func unfence(text string) string {
	body, fenced := strings.CutPrefix(text, "```")
	if !fenced {
		return text
	}
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func jsonSpan(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return text
	}
	return strings.TrimSpace(text[start : end+1])
}

// snippet collapses whitespace and truncates text for error messages.
func snippet(text string) string {
	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetRunes {
		return string(runes[:snippetRunes]) + "..."
	}
	return clean
}
