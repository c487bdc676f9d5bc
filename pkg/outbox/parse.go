package outbox

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseIdentifier accepts "table" or "schema.table".
func ParseIdentifier(s string) (pgx.Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidConfig("identifier is empty")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, invalidConfig("invalid identifier %q (expected table or schema.table)", s)
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if !identPart.MatchString(parts[i]) {
			return nil, invalidConfig("invalid identifier %q (bad part %q)", s, parts[i])
		}
	}
	return pgx.Identifier(parts), nil
}
