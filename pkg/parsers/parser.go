package parsers

// Parser turns raw bytes of one message format into a parsed value.
type Parser interface {
	// Parse parses data, returning the parsed message or an error.
	Parse(data []byte) (any, error)
	// Name returns the name of the format.
	Name() string
	// Detect reports whether data looks like this parser's format.
	Detect(data []byte) bool
}

// Select returns the first candidate that detects data.
func Select(data []byte, candidates ...Parser) (Parser, bool) {
	for _, p := range candidates {
		if p.Detect(data) {
			return p, true
		}
	}
	return nil, false
}
