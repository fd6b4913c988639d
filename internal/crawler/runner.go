package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/metrics"
)

// Runner drives one Source sequentially until it is done, fails, or ctx is
// canceled. Step N+1 never starts before step N returns.
type Runner struct {
	checkpoints CheckpointStore
	logger      *zap.Logger
}

// NewRunner constructs a Runner. checkpoints may be nil.
func NewRunner(checkpoints CheckpointStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{checkpoints: checkpoints, logger: logger.Named("runner")}
}

// Run executes src and returns the last state reached.
func (r *Runner) Run(ctx context.Context, src Source) (State, error) {
	name := src.Name()
	logger := r.logger.With(zap.String("source", name))
	metrics.IncActiveSources()
	defer metrics.DecActiveSources()

	saved := r.loadCheckpoint(ctx, name, logger)
	state, err := src.Start(ctx, saved)
	if err != nil {
		return State{}, fmt.Errorf("start %s: %w", name, err)
	}
	logger.Info("crawl started", zap.Int("cursor", state.Cursor), zap.Bool("resumed", saved != nil))

	var total Stats
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("crawl canceled", zap.Int("cursor", state.Cursor))
			return state, err
		}

		res, err := src.Step(ctx, state)
		if err != nil {
			metrics.ObserveStep(name, "failed")
			if errors.Is(err, ErrRetryLimitExceeded) {
				r.saveCheckpoint(ctx, name, res.Next, logger)
				state = res.Next
			}
			logger.Warn("crawl stopped", zap.Int("cursor", state.Cursor), zap.Error(err))
			return state, err
		}
		metrics.ObserveStep(name, "ok")
		total = total.Add(res.Stats)
		state = res.Next
		logger.Info("step complete",
			zap.Int("cursor", state.Cursor),
			zap.Int("failure_in_row", state.FailureInRow),
			zap.Int("emitted", state.Emitted),
			zap.Int("merged", res.Stats.Merged),
			zap.Int("linked", res.Stats.Linked),
			zap.Int("skipped", res.Stats.Skipped),
		)

		if res.Done {
			r.clearCheckpoint(ctx, name, logger)
			logger.Info("crawl finished",
				zap.Int("merged", total.Merged),
				zap.Int("linked", total.Linked),
				zap.Int("skipped", total.Skipped),
			)
			return state, nil
		}
		r.saveCheckpoint(ctx, name, state, logger)
	}
}

func (r *Runner) loadCheckpoint(ctx context.Context, name string, logger *zap.Logger) *State {
	if r.checkpoints == nil {
		return nil
	}
	state, ok, err := r.checkpoints.Load(ctx, name)
	if err != nil {
		logger.Warn("checkpoint load failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &state
}

func (r *Runner) saveCheckpoint(ctx context.Context, name string, state State, logger *zap.Logger) {
	if r.checkpoints == nil {
		return
	}
	if err := r.checkpoints.Save(ctx, name, state); err != nil {
		logger.Warn("checkpoint save failed", zap.Int("cursor", state.Cursor), zap.Error(err))
	}
}

func (r *Runner) clearCheckpoint(ctx context.Context, name string, logger *zap.Logger) {
	if r.checkpoints == nil {
		return
	}
	if err := r.checkpoints.Clear(ctx, name); err != nil {
		logger.Warn("checkpoint clear failed", zap.Error(err))
	}
}
