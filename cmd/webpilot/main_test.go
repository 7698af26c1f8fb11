// File: cmd/webpilot/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubExit(t *testing.T) *int {
	t.Helper()
	code := -1
	origExit, origWrite := osExit, osWriteFile
	t.Cleanup(func() { osExit, osWriteFile = origExit, origWrite })
	osExit = func(c int) { code = c }
	return &code
}

func TestHandlePanic_WritesLog(t *testing.T) {
	code := stubExit(t)
	var written []byte
	var path string
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		path, written = name, data
		return nil
	}

	func() {
		defer handlePanic()
		panic("kaboom")
	}()

	assert.Equal(t, 2, *code)
	assert.Equal(t, panicLogFile, path)
	assert.Contains(t, string(written), "panic: kaboom")
	assert.Contains(t, string(written), "goroutine")
}

func TestHandlePanic_LogWriteFailure(t *testing.T) {
	code := stubExit(t)
	osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }

	func() {
		defer handlePanic()
		panic("kaboom")
	}()
	assert.Equal(t, 2, *code)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	code := stubExit(t)
	func() {
		defer handlePanic()
	}()
	require.Equal(t, -1, *code)
}
