package policy

import (
	"regexp"
	"strings"
)

const maxChunkChars = 1200

// Chunk is one retrievable unit of a policy document.
type Chunk struct {
	Index        int
	SectionTitle string
	Content      string
}

var headingRE = regexp.MustCompile(`^(?:\d+[\.\)]\s+\S|[A-Z][A-Z0-9 \-&]{3,})`)

// SplitChunks breaks extracted policy text into chunks along paragraph
// boundaries, carrying the nearest preceding section heading into each chunk.
func SplitChunks(text string) []Chunk {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var current strings.Builder
	section := ""

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), SectionTitle: section, Content: content})
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		if isHeading(p) {
			flush()
			section = p
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isHeading treats short numbered or upper-case lines as section headings.
func isHeading(p string) bool {
	if strings.Contains(p, "\n") || len(p) > 80 {
		return false
	}
	return headingRE.MatchString(p)
}
