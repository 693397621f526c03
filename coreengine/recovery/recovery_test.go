package recovery

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *capturingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msg)
}

func (l *capturingLogger) Debug(msg string, _ ...any)   { l.record(msg) }
func (l *capturingLogger) Info(msg string, _ ...any)    { l.record(msg) }
func (l *capturingLogger) Warn(msg string, _ ...any)    { l.record(msg) }
func (l *capturingLogger) Error(msg string, _ ...any)   { l.record(msg) }
func (l *capturingLogger) Bind(_ ...any) logging.Logger { return l }

func (l *capturingLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == msg {
			return true
		}
	}
	return false
}

// =============================================================================
// SAFE EXECUTE
// =============================================================================

func TestSafeExecute(t *testing.T) {
	expected := errors.New("oracle down")

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
		panics  bool
	}{
		{"success", func() error { return nil }, nil, false},
		{"error passes through", func() error { return expected }, expected, false},
		{"panic becomes error", func() error { panic("boom") }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &capturingLogger{}
			err := SafeExecute(logger, "agent.evaluate", tt.fn)

			if tt.panics {
				var perr *PanicError
				require.True(t, errors.As(err, &perr))
				assert.Equal(t, "agent.evaluate", perr.Operation)
				assert.Equal(t, "boom", perr.Value)
				assert.NotEmpty(t, perr.Stack)
				assert.Contains(t, err.Error(), "panic in agent.evaluate: boom")
				assert.True(t, logger.has("panic_recovered"))
				return
			}
			assert.Equal(t, tt.wantErr, err)
			assert.False(t, logger.has("panic_recovered"))
		})
	}
}

func TestSafeExecute_NilLogger(t *testing.T) {
	err := SafeExecute(nil, "op", func() error { panic("no logger") })
	assert.Error(t, err)
}

func TestSafeExecuteWithResult(t *testing.T) {
	result, err := SafeExecuteWithResult(logging.Nop(), "op", func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	str, err := SafeExecuteWithResult(logging.Nop(), "op", func() (string, error) {
		panic("bad response")
	})
	assert.Error(t, err)
	assert.Equal(t, "", str)
}

func TestSafeExecuteWithResult_RuntimePanic(t *testing.T) {
	ptr, err := SafeExecuteWithResult(nil, "op", func() (*int, error) {
		var m map[string]int
		m["x"] = 1
		v := m["x"]
		return &v, nil
	})
	assert.Nil(t, ptr)
	var perr *PanicError
	assert.True(t, errors.As(err, &perr))
}

// =============================================================================
// SAFE GO
// =============================================================================

func TestSafeGo(t *testing.T) {
	logger := &capturingLogger{}
	recovered := make(chan any, 1)

	SafeGo(logger, "auto_negotiate", func() {
		panic("tick failed")
	}, func(r any) {
		recovered <- r
	})

	select {
	case r := <-recovered:
		assert.Equal(t, "tick failed", r)
	case <-time.After(time.Second):
		t.Fatal("onPanic was not called")
	}
	assert.True(t, logger.has("goroutine_panic_recovered"))
}

func TestSafeGo_Success(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	ran := false

	SafeGo(nil, "worker", func() {
		defer wg.Done()
		ran = true
	}, nil)

	wg.Wait()
	assert.True(t, ran)
}
