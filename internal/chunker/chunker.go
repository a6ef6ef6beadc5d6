package chunker

import (
	"strings"
)

// Options controls how text is chunked.
type Options struct {
	ChunkSize int // target chunk size in characters
	Overlap   int // characters carried over from the previous chunk
}

// Chunk represents a slice of the document text.
type Chunk struct {
	Index int
	Text  string
}

// separators are tried in order when looking for a natural cut point near the
// end of a chunk. The empty string means a hard character cut.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Split performs a character-based sliding window with overlap, preferring to
// cut at paragraph, line, sentence, or word boundaries before falling back to
// a hard cut at the size limit.
func Split(text string, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.ChunkSize {
		opts.Overlap = opts.ChunkSize / 2
	}

	runes := []rune(text)
	var chunks []Chunk
	if len(strings.TrimSpace(text)) == 0 {
		return chunks
	}

	start := 0
	for start < len(runes) {
		end := start + opts.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end)
		}
		segment := strings.TrimSpace(string(runes[start:end]))
		if segment != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: segment})
		}
		if end == len(runes) {
			break
		}
		next := end - opts.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// cutPoint searches backwards from limit for the best separator, scanning at
// most half a chunk so short tails cannot collapse the window.
func cutPoint(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	floor := len(window) / 2
	for _, sep := range separators {
		if sep == "" {
			break
		}
		if idx := strings.LastIndex(window, sep); idx >= floor {
			return start + len([]rune(window[:idx+len(sep)]))
		}
	}
	return limit
}
