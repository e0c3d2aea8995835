// Package passage provides the Passage domain entity.
package passage

import "strings"

// Separator joins the words of a revealed chunk.
const Separator = " "

// Passage represents a tokenized text.
type Passage struct {
	Text  string   // Raw input text
	Words []string // Whitespace-separated words, never empty strings
}

// New tokenizes text into a passage.
func New(text string) Passage {
	return Passage{
		Text:  text,
		Words: Words(text),
	}
}

// Len returns the number of words in the passage.
func (p Passage) Len() int {
	return len(p.Words)
}

// Chunk returns the words in [start, end) joined by Separator.
func (p Passage) Chunk(start, end int) string {
	return Join(p.Words, start, end)
}

// Words splits text on runs of whitespace and drops empty tokens.
// Empty or whitespace-only text yields an empty slice.
func Words(text string) []string {
	fields := strings.Fields(text)
	if fields == nil {
		return []string{}
	}
	return fields
}

// Join joins words[start:end] with Separator.
// Indices are clamped to the bounds of words, so out-of-range slices never panic.
func Join(words []string, start, end int) string {
	start = clamp(start, 0, len(words))
	end = clamp(end, 0, len(words))
	if start >= end {
		return ""
	}
	return strings.Join(words[start:end], Separator)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
