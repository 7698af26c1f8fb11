package routine

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// Op is one instruction of the routine language.
type Op string

// The closed instruction set. Anything else is rejected by Compile.
const (
	OpGoto            Op = "goto"
	OpFill            Op = "fill"
	OpClick           Op = "click"
	OpWait            Op = "wait"
	OpWaitForSelector Op = "wait_for_selector"
	OpPress           Op = "press"
	OpScreenshot      Op = "screenshot"
)

// aliases maps alternative spellings models commonly produce onto the closed set.
var aliases = map[string]Op{
	"wait_for_timeout": OpWait,
	"navigate":         OpGoto,
}

var statementRegex = regexp.MustCompile(`^(?:await\s+)?page\.([A-Za-z_]+)\((.*)\)\s*;?$`)

// Statement is one compiled instruction.
type Statement struct {
	Index int    // 1-based position among statements.
	Line  int    // 1-based line number in the routine source.
	Text  string // Trimmed source text.
	Op    Op
	// Target is the URL for goto, the file name for screenshot and the
	// selector for every other element operation.
	Target string
	// Value is the text for fill and the key for press.
	Value string
	Wait  time.Duration
}

// Program is a compiled routine.
type Program struct {
	Statements []Statement
}

// CompileError describes why a single statement was rejected. It matches
// schemas.ErrExecution with errors.Is.
type CompileError struct {
	Statement Statement
	Code      schemas.ErrorCode
	Err       error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("statement %d (line %d) %q: %v", e.Statement.Index, e.Statement.Line, e.Statement.Text, e.Err)
}

// Unwrap exposes both the execution sentinel and the underlying cause.
func (e *CompileError) Unwrap() []error {
	return []error{schemas.ErrExecution, e.Err}
}

// Compile parses a normalized routine into a Program. The first line must be
// the Header; comments, blank lines and no-ops are dropped.
func Compile(r Routine) (*Program, error) {
	lines := strings.Split(r.Source, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != Header {
		return nil, &CompileError{
			Statement: Statement{Line: 1, Text: strings.TrimSpace(lines[0])},
			Code:      schemas.ErrCodeSyntaxError,
			Err:       fmt.Errorf("routine must start with %q", Header),
		}
	}

	prog := &Program{}
	for i, line := range lines[1:] {
		text := strings.TrimSpace(line)
		if skippable(text) {
			continue
		}

		st := Statement{Index: len(prog.Statements) + 1, Line: i + 2, Text: text}
		if err := parseStatement(&st); err != nil {
			var ce *CompileError
			if errors.As(err, &ce) {
				ce.Statement = st
				return nil, ce
			}
			return nil, &CompileError{Statement: st, Code: schemas.ErrCodeSyntaxError, Err: err}
		}
		prog.Statements = append(prog.Statements, st)
	}
	return prog, nil
}

func parseStatement(st *Statement) error {
	m := statementRegex.FindStringSubmatch(st.Text)
	if m == nil {
		return fmt.Errorf("not a page statement")
	}

	name := strings.ToLower(m[1])
	op := Op(name)
	if alias, ok := aliases[name]; ok {
		op = alias
	}
	st.Op = op

	var args []interface{}
	if strings.TrimSpace(m[2]) != "" {
		if err := llmutil.DecodeLenient("["+m[2]+"]", &args); err != nil {
			return &CompileError{Code: schemas.ErrCodeInvalidParameters, Err: fmt.Errorf("unreadable arguments: %w", err)}
		}
	}

	invalid := func(format string, a ...interface{}) error {
		return &CompileError{Code: schemas.ErrCodeInvalidParameters, Err: fmt.Errorf(format, a...)}
	}

	switch op {
	case OpGoto, OpClick, OpWaitForSelector:
		if len(args) != 1 {
			return invalid("%s takes 1 argument, got %d", op, len(args))
		}
		target, ok := nonEmptyString(args[0])
		if !ok {
			return invalid("%s needs a non-empty string", op)
		}
		st.Target = target

	case OpFill, OpPress:
		if len(args) != 2 {
			return invalid("%s takes 2 arguments, got %d", op, len(args))
		}
		selector, ok := nonEmptyString(args[0])
		if !ok {
			return invalid("%s needs a non-empty selector", op)
		}
		value, ok := scalarString(args[1])
		if !ok || (op == OpPress && value == "") {
			return invalid("%s needs a text value", op)
		}
		st.Target, st.Value = selector, value

	case OpWait:
		if len(args) != 1 {
			return invalid("wait takes 1 argument, got %d", len(args))
		}
		ms, ok := args[0].(float64)
		if !ok || ms < 0 || math.IsInf(ms, 0) || math.IsNaN(ms) {
			return invalid("wait needs a non-negative number of milliseconds")
		}
		st.Wait = time.Duration(ms * float64(time.Millisecond))

	case OpScreenshot:
		if len(args) != 1 {
			return invalid("screenshot takes 1 argument, got %d", len(args))
		}
		name, ok := nonEmptyString(args[0])
		if !ok || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return invalid("screenshot needs a plain file name")
		}
		st.Target = name

	default:
		return &CompileError{Code: schemas.ErrCodeUnknownAction, Err: fmt.Errorf("unknown operation %q", name)}
	}
	return nil
}

func nonEmptyString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

// scalarString accepts strings and numbers, since models often emit numeric
// form values unquoted.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
