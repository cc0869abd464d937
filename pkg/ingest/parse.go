package ingest

import "strings"

// selectParser returns the first parser (in declaration order) that
// declares an extension matching path, or nil if none match (§4.3
// Parsing: "the first extension match wins").
func selectParser(path string, parsers []Parser) Parser {
	ext := extensionOf(path)
	for _, p := range parsers {
		for _, candidate := range p.Extensions() {
			if strings.EqualFold(candidate, ext) {
				return p
			}
		}
	}
	return nil
}

func extensionOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx:]
}
