// src/parsers/parser.go
package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/username/custoimport/src/models"
	"github.com/username/custoimport/src/parsers/siscomex"
)

// Parser is the contract every declaration source implements: read one
// uploaded file, return fully populated declarations or fail hard. Parsers
// never fill in amounts the source did not carry.
type Parser interface {
	Parse(file io.Reader) ([]models.Declaration, error)
}

// SourceSiscomex identifies the SISCOMEX DI extract format.
const SourceSiscomex = "siscomex"

// registry maps a source identifier (as sent by the client) to its parser.
var registry = map[string]Parser{
	SourceSiscomex: siscomex.NewParser(),
}

// GetParser returns the parser registered for a source identifier.
func GetParser(source string) (Parser, error) {
	parser, ok := registry[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return nil, fmt.Errorf("unsupported declaration source %q", source)
	}
	return parser, nil
}
