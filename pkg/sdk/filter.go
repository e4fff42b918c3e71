package sdk

import (
	"fmt"
	"strings"
)

// SearchFields are the user properties matched by prefix searches.
var SearchFields = []string{"displayName", "mail"}

// BuildStartsWithFilter builds an OData OR filter matching records whose
// fields start with prefix, e.g.
//
//	startswith(displayName,'Ann') or startswith(mail,'Ann')
//
// Single quotes in prefix are doubled so the literal cannot terminate early.
// When fields is empty an empty string is returned.
func BuildStartsWithFilter(prefix string, fields ...string) string {
	if len(fields) == 0 {
		return ""
	}
	literal := QuoteODataString(prefix)
	expressions := make([]string, 0, len(fields))
	for _, field := range fields {
		expressions = append(expressions, fmt.Sprintf("startswith(%s,%s)", field, literal))
	}
	return strings.Join(expressions, " or ")
}

// QuoteODataString returns value as a single-quoted OData string literal.
func QuoteODataString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
