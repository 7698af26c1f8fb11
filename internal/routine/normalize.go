package routine

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// Header is the single entry point every routine starts with.
const Header = "routine run(page):"

// indent is prefixed to every body line when a routine is wrapped.
const indent = "    "

// Routine is normalized routine text. It is untrusted: it only ever runs
// through Compile and the engine's page capabilities.
type Routine struct {
	Source string
}

// String returns the routine text.
func (r Routine) String() string { return r.Source }

// Normalizer shapes raw generated text into a Routine.
type Normalizer struct {
	minLength int
	rewrites  []config.RewriteRule
}

// NewNormalizer creates a Normalizer from configuration.
func NewNormalizer(cfg config.NormalizerConfig) *Normalizer {
	return &Normalizer{
		minLength: cfg.MinLength,
		rewrites:  append([]config.RewriteRule(nil), cfg.Rewrites...),
	}
}

// Normalize applies the configured rewrites, strips markdown fences and makes
// sure the text opens with exactly one Header. Text whose first line is the
// Header and that carries no fences is returned as is, trailing whitespace
// included; only CRLF line endings become LF. Text without a header is
// wrapped: the header is prepended and every line is indented, keeping the
// original order. Degenerate results yield schemas.ErrEmptyGeneration; a
// header anywhere but the first line yields schemas.ErrMalformedRoutine.
//
// Normalize is idempotent on its own output.
func (n *Normalizer) Normalize(raw string) (Routine, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	for _, rw := range n.rewrites {
		text = strings.ReplaceAll(text, rw.From, rw.To)
	}
	stripped := llmutil.StripFences(text)

	lines := strings.Split(stripped, "\n")
	headers := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == Header {
			headers++
		}
	}

	var source string
	switch {
	case strings.TrimSpace(lines[0]) == Header && headers == 1:
		if strings.HasPrefix(text, Header+"\n") && strings.TrimSpace(text) == stripped {
			source = text
			break
		}
		lines[0] = Header
		source = strings.Join(lines, "\n")
	case headers > 0:
		return Routine{}, fmt.Errorf("%w: entry point declared %d time(s), expected once on the first line", schemas.ErrMalformedRoutine, headers)
	default:
		var b strings.Builder
		b.WriteString(Header)
		for _, line := range lines {
			b.WriteString("\n")
			b.WriteString(indent)
			b.WriteString(line)
		}
		source = b.String()
	}

	if len(source) < n.minLength {
		return Routine{}, fmt.Errorf("%w: routine is %d bytes, minimum is %d", schemas.ErrEmptyGeneration, len(source), n.minLength)
	}
	if countStatements(source) == 0 {
		return Routine{}, fmt.Errorf("%w: routine has no statements", schemas.ErrEmptyGeneration)
	}
	return Routine{Source: source}, nil
}

// countStatements counts body lines that are not blank, comments or no-ops.
func countStatements(source string) int {
	n := 0
	for i, line := range strings.Split(source, "\n") {
		if i == 0 {
			continue
		}
		if !skippable(strings.TrimSpace(line)) {
			n++
		}
	}
	return n
}

// skippable reports whether a trimmed body line carries no instruction.
func skippable(line string) bool {
	switch {
	case line == "":
		return true
	case strings.HasPrefix(line, "#"), strings.HasPrefix(line, "//"):
		return true
	}
	switch strings.TrimSuffix(line, ";") {
	case "pass", "noop":
		return true
	}
	return false
}
