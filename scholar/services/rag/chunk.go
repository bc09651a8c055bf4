// Package rag holds the retrieval side of paper chat: splitting text into
// overlapping chunks, ranking them against a question, and building the
// grounded prompt.
package rag

import (
	"strings"
	"unicode"
)

// Chunk splits text into pieces of at most size runes, each overlapping the
// previous one by overlap runes. Cuts are moved back to the nearest
// whitespace when one exists in the second half of the window.
func Chunk(text string, size, overlap int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := end
		for i := end; i > start+size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		// do not start a chunk mid-word
		for next < cut && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}
