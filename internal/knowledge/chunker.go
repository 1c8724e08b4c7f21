package knowledge

import "strings"

// Chunker defaults, in runes. Paragraph boundaries are preferred split
// points; a paragraph longer than maxSize is split hard with overlap so no
// text is lost.
const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 150
)

// Chunker splits document text into ingestible pieces.
type Chunker struct {
	// MaxSize is the chunk size cap in runes. Zero means the default.
	MaxSize int
	// Overlap is how many trailing runes of a chunk are repeated at the
	// start of the next one when a paragraph is split hard.
	Overlap int
}

// Split breaks text at blank-line paragraph boundaries, packing adjacent
// paragraphs into chunks up to MaxSize. Whitespace-only input yields nil.
func (c Chunker) Split(text string) []string {
	maxSize := c.MaxSize
	if maxSize <= 0 {
		maxSize = defaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= maxSize {
		overlap = defaultChunkOverlap
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len([]rune(para)) > maxSize {
			flush()
			chunks = append(chunks, splitHard(para, maxSize, overlap)...)
			continue
		}

		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(para))+2 > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// splitHard slices an oversized paragraph into fixed windows with overlap.
func splitHard(text string, maxSize, overlap int) []string {
	runes := []rune(text)
	var out []string
	step := maxSize - overlap
	for start := 0; start < len(runes); start += step {
		end := start + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}
