package chunker

import (
	"strings"
	"unicode"
)

// MatchThreshold is the minimum bigram Dice similarity for a fuzzy page
// alignment to count as confident. Pages aligned below this value keep a
// best-effort offset but carry their (low) similarity as confidence, so
// downstream consumers can surface uncertain citations.
const MatchThreshold = 0.80

// anchorLen is the number of normalized characters from the head of a page
// used to locate it within the full text.
const anchorLen = 64

// AlignPages builds a page-boundary table by fuzzily locating each page's
// text within the full extracted text. It exists for sources that supply
// per-page texts without byte offsets into the joined document — OCR
// output, page-per-file scans, or text re-assembled from an external
// extractor; the in-repo extraction paths record exact offsets and do not
// need it. The matching is tolerant of whitespace differences and light
// OCR noise. The returned table is always monotonic and usable by Chunk;
// pages that could not be located confidently get the running cursor as
// offset and a confidence below MatchThreshold.
func AlignPages(text string, pageTexts []string) []Page {
	if len(pageTexts) == 0 {
		return nil
	}

	normFull, idxMap := normalize(text)
	pages := make([]Page, 0, len(pageTexts))
	cursor := 0 // position in normFull

	for i, pt := range pageTexts {
		normPage, _ := normalize(pt)
		page := Page{Number: i + 1}

		if normPage == "" {
			// Blank page: boundary at the cursor, trivially confident.
			page.Offset = origOffset(idxMap, cursor, len(text))
			page.Confidence = 1.0
			pages = append(pages, page)
			continue
		}

		anchor := normPage
		if len(anchor) > anchorLen {
			anchor = anchor[:anchorLen]
		}

		rel := strings.Index(normFull[cursor:], anchor)
		if rel < 0 {
			// Anchor missing: keep the boundary at the cursor and score the
			// page against what follows so the confidence reflects reality.
			window := normFull[cursor:]
			if len(window) > len(normPage) {
				window = window[:len(normPage)]
			}
			page.Offset = origOffset(idxMap, cursor, len(text))
			page.Confidence = diceBigram(normPage, window)
			pages = append(pages, page)
			continue
		}

		at := cursor + rel
		window := normFull[at:]
		if len(window) > len(normPage) {
			window = window[:len(normPage)]
		}
		page.Offset = origOffset(idxMap, at, len(text))
		page.Confidence = diceBigram(normPage, window)
		pages = append(pages, page)
		cursor = at + len(window)
	}

	return dedupeOffsets(pages, len(text))
}

// normalize lowercases text and collapses whitespace runs to single spaces,
// returning the normalized string and a map from each normalized index to
// the corresponding original byte offset.
func normalize(text string) (string, []int) {
	var b strings.Builder
	idx := make([]int, 0, len(text))
	pendingSpace := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			idx = append(idx, i)
			pendingSpace = false
		}
		for range len(string(unicode.ToLower(r))) {
			idx = append(idx, i)
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String(), idx
}

// origOffset maps a normalized index back to an original byte offset.
func origOffset(idxMap []int, normIdx, textLen int) int {
	if normIdx >= len(idxMap) {
		return textLen
	}
	return idxMap[normIdx]
}

// diceBigram computes the Sørensen–Dice coefficient over character bigrams.
// Returns 1.0 for identical strings and 0.0 for disjoint ones.
func diceBigram(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) < 2 || len(b) < 2 {
		return 0.0
	}

	bigrams := make(map[string]int)
	for i := 0; i+2 <= len(a); i++ {
		bigrams[a[i:i+2]]++
	}
	matches := 0
	for i := 0; i+2 <= len(b); i++ {
		if bigrams[b[i:i+2]] > 0 {
			bigrams[b[i:i+2]]--
			matches++
		}
	}
	return 2.0 * float64(matches) / float64(len(a)+len(b)-2)
}

// dedupeOffsets enforces strictly increasing offsets so the table always
// passes validation. A page that collapsed onto its predecessor's offset is
// nudged forward by one byte; pages nudged past the end of the text carry no
// content and are dropped.
func dedupeOffsets(pages []Page, textLen int) []Page {
	for i := 1; i < len(pages); i++ {
		if pages[i].Offset <= pages[i-1].Offset {
			pages[i].Offset = pages[i-1].Offset + 1
		}
		if pages[i].Offset >= textLen {
			return pages[:i]
		}
	}
	return pages
}
