// Package metadata derives best-effort document-level metadata (title,
// author, publication date, keywords) from extracted text. Every field is
// optional: absence is a valid result, never an error, and extraction never
// blocks chunking or embedding.
package metadata

import (
	"regexp"
	"strings"
)

// Record holds the extracted document-level metadata. Empty fields mean the
// value could not be determined.
type Record struct {
	// Title is the inferred document title.
	Title string

	// Author is the inferred author line.
	Author string

	// Published is the inferred publication date, kept as found in the text.
	Published string

	// Keywords is the declared keyword set, if the document lists one.
	Keywords []string
}

// maxTitleLen bounds how long a leading line may be and still count as a title.
const maxTitleLen = 120

// headScanLines is how many leading lines are scanned for metadata cues.
const headScanLines = 40

var (
	// authorPattern matches "By Jane Doe" / "Author: Jane Doe" lines.
	authorPattern = regexp.MustCompile(`(?i)^\s*(?:by|authors?)\s*[:\s]\s*(.+?)\s*$`)

	// keywordsPattern matches "Keywords: a, b; c" lines.
	keywordsPattern = regexp.MustCompile(`(?i)^\s*(?:keywords?|index terms)\s*[:\s]\s*(.+?)\s*$`)

	// datePatterns are tried in order against each head line.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		regexp.MustCompile(`(?i)\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`),
		regexp.MustCompile(`(?i)\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4})\b`),
		regexp.MustCompile(`(?i)(?:published|copyright|©|\(c\))\D{0,10}(\d{4})`),
	}
)

// Extract scans the head of the document text for title, author, date, and
// keyword cues. All fields are best-effort; an empty Record is a normal
// outcome for documents without a recognizable title page.
func Extract(text string) Record {
	var rec Record

	lines := strings.Split(text, "\n")
	if len(lines) > headScanLines {
		lines = lines[:headScanLines]
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// First reasonable non-empty line is the title.
		if rec.Title == "" && len(line) <= maxTitleLen {
			rec.Title = line
			continue
		}

		if rec.Author == "" {
			if m := authorPattern.FindStringSubmatch(line); m != nil {
				rec.Author = m[1]
				continue
			}
		}

		if rec.Keywords == nil {
			if m := keywordsPattern.FindStringSubmatch(line); m != nil {
				rec.Keywords = splitKeywords(m[1])
				continue
			}
		}

		if rec.Published == "" {
			for _, p := range datePatterns {
				if m := p.FindStringSubmatch(line); m != nil {
					rec.Published = m[1]
					break
				}
			}
		}
	}

	return rec
}

// ToMap flattens the record into the metadata key/value form stored with the
// document. Empty fields are omitted so merges never clobber better values.
func (r Record) ToMap() map[string]string {
	out := make(map[string]string, 4)
	if r.Title != "" {
		out["title"] = r.Title
	}
	if r.Author != "" {
		out["author"] = r.Author
	}
	if r.Published != "" {
		out["published"] = r.Published
	}
	if len(r.Keywords) > 0 {
		out["keywords"] = strings.Join(r.Keywords, ", ")
	}
	return out
}

// splitKeywords splits a declared keyword line on commas and semicolons.
func splitKeywords(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.TrimSpace(p); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
