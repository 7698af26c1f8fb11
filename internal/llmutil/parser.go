// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fenceRegex matches a markdown fence marker. A language tag is only
	// consumed when it is the rest of the line, so a fence glued to code keeps
	// the code.
	fenceRegex = regexp.MustCompile("(?m)\x60{3}(?:[A-Za-z0-9_+-]+[ \t]*$)?")
)

// StripFences removes every markdown code fence marker (with an optional
// language tag such as ```python) from an LLM response and trims the
// surrounding whitespace. Text between fences is kept in order.
func StripFences(content string) string {
	return strings.TrimSpace(fenceRegex.ReplaceAllString(content, ""))
}

// DecodeLenient unmarshals JSON produced by a model into v. Strict decoding is
// tried first; on failure the input is repaired (single quotes, trailing
// commas, unquoted keys) and decoded again.
func DecodeLenient(raw string, v interface{}) error {
	if err := json.UnmarshalFromString(raw, v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("could not repair JSON %q: %w", Truncate(raw, 120), err)
	}
	if err := json.UnmarshalFromString(repaired, v); err != nil {
		return fmt.Errorf("failed to decode repaired JSON %q: %w", Truncate(repaired, 120), err)
	}
	return nil
}

// Truncate shortens s to at most maxLen bytes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Byte-based cut; good enough for log fields.
	return s[:maxLen] + "..."
}
