package chunker

import "unicode"

// span is a token's byte range within the source text (half-open).
type span struct {
	start int
	end   int
}

// tokenize splits text into whitespace-delimited tokens and records the byte
// offsets of each token against the original text. Offsets are what make
// chunk slices reproduce the source verbatim: chunk boundaries always land
// on token starts, so concatenating non-overlap regions tiles the text
// exactly.
func tokenize(text string) []span {
	var toks []span
	inTok := false
	start := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inTok {
				toks = append(toks, span{start: start, end: i})
				inTok = false
			}
			continue
		}
		if !inTok {
			start = i
			inTok = true
		}
	}
	if inTok {
		toks = append(toks, span{start: start, end: len(text)})
	}
	return toks
}

// CountTokens returns the number of whitespace-delimited tokens in text.
// Used by callers that need to size inputs against a token budget.
func CountTokens(text string) int {
	return len(tokenize(text))
}
