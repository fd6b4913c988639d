package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubCheckpoints struct {
	states  map[string]State
	saves   int
	cleared []string
	saveErr error
	loadErr error
}

func newStubCheckpoints() *stubCheckpoints {
	return &stubCheckpoints{states: make(map[string]State)}
}

func (s *stubCheckpoints) Load(_ context.Context, source string) (State, bool, error) {
	if s.loadErr != nil {
		return State{}, false, s.loadErr
	}
	st, ok := s.states[source]
	return st, ok, nil
}

func (s *stubCheckpoints) Save(_ context.Context, source string, state State) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[source] = state
	return nil
}

func (s *stubCheckpoints) Clear(_ context.Context, source string) error {
	delete(s.states, source)
	s.cleared = append(s.cleared, source)
	return nil
}

// pagedSource emits one item per page and is done after pages steps.
type pagedSource struct {
	pages   int
	saved   *State
	steps   int
	cancel  context.CancelFunc
	stepErr error
}

func (p *pagedSource) Name() string { return "paged" }

func (p *pagedSource) Start(_ context.Context, saved *State) (State, error) {
	p.saved = saved
	if saved != nil {
		return *saved, nil
	}
	return State{Cursor: 1}, nil
}

func (p *pagedSource) Step(_ context.Context, s State) (StepResult, error) {
	p.steps++
	if p.cancel != nil && p.steps == 2 {
		p.cancel()
	}
	if p.stepErr != nil {
		return StepResult{Next: s}, p.stepErr
	}
	next, done := AdvanceBounded(s, 1, p.pages)
	return StepResult{Next: next, Done: done, Stats: Stats{Merged: 2, Linked: 1}}, nil
}

func TestRunnerRunsUntilDone(t *testing.T) {
	t.Parallel()

	cp := newStubCheckpoints()
	src := &pagedSource{pages: 3}
	state, err := NewRunner(cp, zap.NewNop()).Run(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 3, state.Emitted)
	require.Equal(t, 3, src.steps)
	require.Equal(t, 2, cp.saves)
	require.Equal(t, []string{"paged"}, cp.cleared)
	require.Empty(t, cp.states)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	cp := newStubCheckpoints()
	cp.states["paged"] = State{Cursor: 3, Emitted: 2}
	src := &pagedSource{pages: 3}
	_, err := NewRunner(cp, nil).Run(context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, src.saved)
	require.Equal(t, 1, src.steps)
}

func TestRunnerCheckpointFailuresAreWarnings(t *testing.T) {
	t.Parallel()

	cp := newStubCheckpoints()
	cp.loadErr = errors.New("db down")
	cp.saveErr = errors.New("db down")
	core, logs := observer.New(zapcore.WarnLevel)
	src := &pagedSource{pages: 2}

	_, err := NewRunner(cp, zap.New(core)).Run(context.Background(), src)
	require.NoError(t, err)
	require.Nil(t, src.saved)
	require.Equal(t, 1, logs.FilterMessage("checkpoint load failed").Len())
	require.Equal(t, 1, logs.FilterMessage("checkpoint save failed").Len())
}

func TestRunnerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &pagedSource{pages: 100, cancel: cancel}
	_, err := NewRunner(nil, nil).Run(ctx, src)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, src.steps)
}

// probeSource fails every probe.
type probeSource struct{ limit int }

func (p probeSource) Name() string { return "probe" }

func (p probeSource) Start(context.Context, *State) (State, error) {
	return State{Cursor: 50}, nil
}

func (p probeSource) Step(_ context.Context, s State) (StepResult, error) {
	next, err := AdvanceProbe(s, false, p.limit)
	return StepResult{Next: next}, err
}

func TestRunnerRetryLimitSavesCheckpoint(t *testing.T) {
	t.Parallel()

	cp := newStubCheckpoints()
	state, err := NewRunner(cp, nil).Run(context.Background(), probeSource{limit: 3})
	require.ErrorIs(t, err, ErrRetryLimitExceeded)
	require.Equal(t, State{Cursor: 53, FailureInRow: 3}, state)
	require.Equal(t, state, cp.states["probe"])
	require.Equal(t, 50, ProbeResumeCursor(cp.states["probe"]))
}

type failingStart struct{}

func (failingStart) Name() string { return "bootstrap" }

func (failingStart) Start(context.Context, *State) (State, error) {
	return State{}, ErrBootstrap
}

func (failingStart) Step(context.Context, State) (StepResult, error) {
	panic("step must not run")
}

func TestRunnerBootstrapFailure(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil, nil).Run(context.Background(), failingStart{})
	require.ErrorIs(t, err, ErrBootstrap)
}
