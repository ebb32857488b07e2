package microkern

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_OptionErrors(t *testing.T) {
	_, err := New(WithTicksPerSecond(0))
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = New(WithIdleStackSize(0))
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = New(WithArch(nil))
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestNew_NilOptionSkipped(t *testing.T) {
	k, err := New(nil, WithTicksPerSecond(128), nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), k.TicksPerSecond())
}

func TestNew_CreatesIdleTask(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	task, info := k.TaskNext(nil)
	require.NotNil(t, task)
	assert.Equal(t, "idle", info.Name)
	assert.Equal(t, IdlePriority, info.Priority)
	assert.Equal(t, TaskReady, info.State)
	assert.Equal(t, StateBoot, k.State())
}

func TestStartStop_Lifecycle(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Start(ctx) }()

	waitFor(t, func() bool { return k.State() == StateRunning })
	assert.ErrorIs(t, k.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, k.Stop(context.Background()))
	assert.Equal(t, StateStopped, k.State())
	assert.ErrorIs(t, k.Stop(context.Background()), ErrStopped)
	assert.ErrorIs(t, k.Start(ctx), ErrStopped)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestStop_BeforeStart(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	require.NoError(t, k.Stop(context.Background()))
	assert.Equal(t, StateStopped, k.State())
	assert.ErrorIs(t, k.Start(context.Background()), ErrStopped)
}

func TestStart_ContextCancellation(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Start(ctx) }()
	waitFor(t, func() bool { return k.State() == StateRunning })

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return on cancellation")
	}
	assert.Equal(t, StateStopped, k.State())
}

// TestStructuredLogging wires a stumpy-backed logiface logger and
// checks that kernel events are emitted as structured JSON.
func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	)

	k, err := New(WithLogger(logger.Logger()))
	require.NoError(t, err)

	task := &Task{}
	require.NoError(t, k.TaskInit(task, "worker", sleepForever(k), nil, 3, TicksForever, make([]uintptr, 64)))
	require.NoError(t, k.SetTimeOfDay(&TimeVal{Sec: 1_700_000_000}, nil))

	out := buf.String()
	assert.Contains(t, out, "task initialized")
	assert.Contains(t, out, `"task":"worker"`)
	assert.Contains(t, out, "time of day set")
	assert.Contains(t, out, `"category":"time"`)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "Boot", StateBoot.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Stopping", StateStopping.String())
	assert.Equal(t, "Stopped", StateStopped.String())
	assert.Equal(t, "Unknown", KernelState(99).String())

	assert.Equal(t, "Uninit", TaskUninit.String())
	assert.Equal(t, "Ready", TaskReady.String())
	assert.Equal(t, "Running", TaskRunning.String())
	assert.Equal(t, "Sleeping", TaskSleeping.String())
	assert.Equal(t, "Removed", TaskRemoved.String())
	assert.Equal(t, "Unknown", TaskState(99).String())
}

func TestKernState_Transitions(t *testing.T) {
	s := newKernState()
	assert.Equal(t, StateBoot, s.Load())
	assert.False(t, s.TryTransition(StateRunning, StateStopping))
	assert.True(t, s.TryTransition(StateBoot, StateRunning))
	assert.True(t, s.TransitionAny([]KernelState{StateBoot, StateRunning}, StateStopping))
	assert.False(t, s.TransitionAny([]KernelState{StateBoot, StateRunning}, StateStopping))
	s.Store(StateStopped)
	assert.Equal(t, StateStopped, s.Load())
}

func TestCritSection_Nesting(t *testing.T) {
	var cs critSection
	outer := cs.Enter()
	inner := cs.Enter()
	assert.Equal(t, IntMask(0), outer)
	assert.Equal(t, IntMask(1), inner)
	cs.Exit(inner)
	cs.Exit(outer)

	// Reusable after full release.
	again := cs.Enter()
	assert.Equal(t, IntMask(0), again)
	cs.Exit(again)
}
