package backend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	a := m.Called(ctx, name, args, stdin)
	return a.Get(0).([]byte), a.Get(1).([]byte), a.Error(2)
}

func TestExecutor_ExecutePassesArgs(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "/bin/engine", []string{"--x", "1"}, nil).
		Return([]byte("out"), []byte("err"), nil).Once()

	e := NewExecutorWithRunner("/bin/engine", 0, runner)
	stdout, stderr, err := e.Execute(context.Background(), []string{"--x", "1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "out", string(stdout))
	assert.Equal(t, "err", string(stderr))
	runner.AssertExpectations(t)
}

func TestExecutor_TimeoutSetsDeadline(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "engine", mock.Anything, nil).Return([]byte{}, []byte{}, nil).Once()

	e := NewExecutorWithRunner("engine", time.Minute, runner)
	_, _, err := e.Execute(context.Background(), nil, nil)

	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestExecutor_NoTimeoutMeansNoDeadline(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return !ok
	}), "engine", mock.Anything, nil).Return([]byte{}, []byte("boom"), errors.New("exit status 1")).Once()

	e := NewExecutorWithRunner("engine", 0, runner)
	_, stderr, err := e.Execute(context.Background(), nil, nil)

	assert.Error(t, err)
	assert.Equal(t, "boom", string(stderr))
	runner.AssertExpectations(t)
}

func TestNewExecutor_MissingBinary(t *testing.T) {
	_, err := NewExecutor("definitely-not-an-installed-engine-binary", 0)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestExecCommandRunner_Run(t *testing.T) {
	e, err := NewExecutor("sh", 5*time.Second)
	if err != nil {
		t.Skip("sh not available")
	}

	stdout, _, err := e.Execute(context.Background(), []string{"-c", "echo ready"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ready\n", string(stdout))
}
