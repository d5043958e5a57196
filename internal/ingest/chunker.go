package ingest

import "strings"

const (
	// chunkSize is the target chunk length in runes. Paragraphs are
	// packed until the next one would overflow it.
	chunkSize = 1000
	// chunkOverlap is carried from the tail of one hard-split chunk
	// into the next so sentences cut at a boundary stay searchable.
	chunkOverlap = 100
)

// ChunkText splits document text into retrieval-sized chunks. Paragraph
// boundaries are respected where possible; paragraphs longer than
// chunkSize are hard-split with overlap.
func ChunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len([]rune(para)) > chunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, hardSplit(para)...)
			continue
		}

		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(para))+2 > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// hardSplit cuts an oversized paragraph into chunkSize windows with
// chunkOverlap runes of context repeated at each boundary.
func hardSplit(para string) []string {
	runes := []rune(para)
	var chunks []string
	step := chunkSize - chunkOverlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
