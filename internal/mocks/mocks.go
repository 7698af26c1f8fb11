// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close mocks client teardown.
func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Translator Mock --

// MockTranslator mocks the routine translator.
type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) Translate(ctx context.Context, task string, ev *schemas.Evidence) (string, error) {
	args := m.Called(ctx, task, ev)
	return args.String(0), args.Error(1)
}

// -- Operator Mock --

// MockOperator mocks operator.Operator. ShowRoutine, ReportFailure and
// Notify are recorded but need no expectations.
type MockOperator struct {
	mock.Mock

	mu       sync.Mutex
	Shown    []string
	Reported []*schemas.Evidence
	Notices  []string
}

func (m *MockOperator) ReadTask(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockOperator) ShowRoutine(title string, r routine.Routine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Shown = append(m.Shown, title)
}

func (m *MockOperator) ConfirmRun(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockOperator) ConfirmRetry(ctx context.Context, ev *schemas.Evidence) (bool, error) {
	args := m.Called(ctx, ev)
	return args.Bool(0), args.Error(1)
}

func (m *MockOperator) ReportFailure(ev *schemas.Evidence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reported = append(m.Reported, ev)
}

func (m *MockOperator) Notify(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notices = append(m.Notices, msg)
}

func (m *MockOperator) BeforeClose(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
