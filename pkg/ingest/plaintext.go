package ingest

import "strings"

// PlainTextParser is the one built-in Parser this repo ships: it splits
// plain text and Markdown files into paragraph chunks, falling back to
// fixed-size splitting for a paragraph longer than MaxChunkRunes. Every
// other Parser named by a ProcessingStrategy is an external
// collaborator per spec.md §6; this one exists so a project with no
// custom parsers configured still has a working default for .txt/.md
// sources (exercised directly by seed scenario S1).
type PlainTextParser struct {
	// MaxChunkRunes bounds a single chunk's length; 0 means 2000.
	MaxChunkRunes int
}

// Extensions implements Parser.
func (p PlainTextParser) Extensions() []string {
	return []string{".txt", ".md"}
}

// Parse implements Parser: split on blank lines into paragraphs, then
// further split any paragraph exceeding MaxChunkRunes.
func (p PlainTextParser) Parse(data []byte) ([]ParsedChunk, error) {
	maxRunes := p.MaxChunkRunes
	if maxRunes <= 0 {
		maxRunes = 2000
	}

	var chunks []ParsedChunk
	for _, para := range strings.Split(string(data), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range splitRunes(para, maxRunes) {
			chunks = append(chunks, ParsedChunk{Text: piece, Metadata: map[string]interface{}{}})
		}
	}
	return chunks, nil
}

func splitRunes(s string, maxRunes int) []string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(runes); start += maxRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
