// internal/operator/terminal.go
package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

const (
	taskPrompt  = "Describe the task: "
	runPrompt   = "Run this in the browser? (y/n): "
	retryPrompt = "Retry with an updated routine? (y/n): "
	closePrompt = "Press Enter to close the browser..."
)

// lineReader is the part of *readline.Instance the terminal needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// Terminal prompts a human on the controlling terminal.
type Terminal struct {
	rl  lineReader
	out io.Writer
	// autoApproveRetries skips the retry question.
	autoApproveRetries bool

	closeOnce sync.Once
}

var _ Operator = (*Terminal)(nil)

// NewTerminal creates a readline backed operator on stdin/stdout.
func NewTerminal(autoApproveRetries bool) (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 "> ",
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		DisableAutoSaveHistory: true,
		Stdin:                  readline.NewCancelableStdin(os.Stdin),
		Stdout:                 os.Stdout,
		Stderr:                 os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}
	return newTerminal(rl, rl.Stdout(), autoApproveRetries), nil
}

func newTerminal(rl lineReader, out io.Writer, autoApproveRetries bool) *Terminal {
	return &Terminal{rl: rl, out: out, autoApproveRetries: autoApproveRetries}
}

// Close releases the terminal. Safe to call more than once.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.rl.Close() })
	return err
}

// readLine reads one line, giving up when ctx ends. Readline itself cannot
// be canceled, so the reader is closed to unblock it.
func (t *Terminal) readLine(ctx context.Context, prompt string) (string, error) {
	t.rl.SetPrompt(prompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.rl.Readline()
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, readline.ErrInterrupt) {
			return "", ErrInterrupted
		}
		return strings.TrimSpace(r.line), r.err
	case <-ctx.Done():
		_ = t.Close()
		return "", ctx.Err()
	}
}

func (t *Terminal) ReadTask(ctx context.Context) (string, error) {
	for {
		line, err := t.readLine(ctx, taskPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no task given")
			}
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

func (t *Terminal) ShowRoutine(title string, r routine.Routine) {
	printRoutine(t.out, title, r)
}

func (t *Terminal) ConfirmRun(ctx context.Context) (bool, error) {
	return t.confirm(ctx, runPrompt)
}

func (t *Terminal) ConfirmRetry(ctx context.Context, ev *schemas.Evidence) (bool, error) {
	printFailure(t.out, ev)
	if t.autoApproveRetries {
		noticeColor.Fprintln(t.out, "Retrying automatically.")
		return true, nil
	}
	return t.confirm(ctx, retryPrompt)
}

func (t *Terminal) ReportFailure(ev *schemas.Evidence) {
	printFailure(t.out, ev)
}

// confirm treats end of input as a no.
func (t *Terminal) confirm(ctx context.Context, prompt string) (bool, error) {
	line, err := t.readLine(ctx, prompt)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isYes(line), nil
}

func (t *Terminal) Notify(msg string) {
	noticeColor.Fprintln(t.out, msg)
}

func (t *Terminal) BeforeClose(ctx context.Context) error {
	_, err := t.readLine(ctx, closePrompt)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
		return nil
	}
	return err
}
