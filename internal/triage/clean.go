package triage

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	noiseSelectors = "script, style, noscript, iframe, nav, footer, header, aside, form, figure figcaption, .advert, .ad, .share, .related"
	blockSelectors = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, td"
	spaceRun       = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// CleanText returns normalized plain text for an item. Markup is used when no
// plain text was supplied or when it carries more text than the plain body.
func CleanText(text, markup string) (string, error) {
	plain := NormalizeWhitespace(text)
	if strings.TrimSpace(markup) == "" {
		return plain, nil
	}
	stripped, err := StripMarkup(markup)
	if err != nil {
		if plain != "" {
			return plain, nil
		}
		return "", err
	}
	if utf8.RuneCountInString(stripped) > utf8.RuneCountInString(plain) {
		return stripped, nil
	}
	return plain, nil
}

// StripMarkup extracts readable text from HTML, one paragraph per block element.
func StripMarkup(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	doc.Find(noiseSelectors).Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var paragraphs []string
	root.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are visited on their own.
		if s.Find(blockSelectors).Length() > 0 {
			return
		}
		if line := NormalizeWhitespace(s.Text()); line != "" {
			paragraphs = append(paragraphs, line)
		}
	})
	if len(paragraphs) == 0 {
		return NormalizeWhitespace(root.Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// NormalizeWhitespace collapses runs of spaces, trims each line and keeps at
// most one blank line between paragraphs.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	joined = blankLines.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}
