// Package jsonpath reads values out of JSON response bodies using a small
// JSONPath subset ($.a.b[0].c) translated to gjson paths.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup returns the value at path in body as a string. Nulls render as
// "null". ok is false when the path does not exist or body is not JSON.
func Lookup(body []byte, path string) (value string, ok bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", false
	}

	result := gjson.GetBytes(body, convertToGjsonPath(path))
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.Null {
		return "null", true
	}
	return result.String(), true
}

// Extract is Lookup with an error describing why nothing was found.
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty JSON body")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	value, ok := Lookup(body, path)
	if !ok {
		return "", fmt.Errorf("path not found: %s", path)
	}
	return value, nil
}

// ValidPath reports whether path is a syntactically usable expression.
func ValidPath(path string) bool {
	path = strings.TrimSpace(path)
	return path != "" && strings.Count(path, "[") == strings.Count(path, "]")
}

// convertToGjsonPath converts a JSONPath expression to gjson syntax.
//
//	JSONPath: $.entries[0].amount
//	gjson:    entries.0.amount
func convertToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// Quoted bracket notation: ['name'] or ["name"]
	for _, q := range []string{"'", "\""} {
		path = strings.ReplaceAll(path, "["+q, ".")
		path = strings.ReplaceAll(path, q+"]", "")
	}

	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}
