package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/replay"
	"github.com/cory-johannsen/skirmish/internal/storage"
)

// FrameSink receives a snapshot after every tick, plus one of the initial
// state. replay.Writer and spectator.Hub implement it.
type FrameSink interface {
	WriteFrame(f replay.Frame) error
}

// Runner drives a Battle until it is decided or stopped, recording every tick.
// It implements server.Service.
type Runner struct {
	battle   *Battle
	interval time.Duration
	recorder storage.Recorder
	sinks    []FrameSink
	logger   *zap.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	outcome Outcome
}

// NewRunner creates a Runner for b. An interval of zero runs ticks back to
// back.
//
// Precondition: b, recorder and logger must be non-nil; interval >= 0.
func NewRunner(b *Battle, interval time.Duration, recorder storage.Recorder, logger *zap.Logger, sinks ...FrameSink) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		battle:   b,
		interval: interval,
		recorder: recorder,
		sinks:    sinks,
		logger:   logger.With(zap.String("battle", b.ID().String())),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the battle until it is decided or Stop is called.
func (r *Runner) Start() error {
	_, err := r.Run(r.ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop interrupts a running battle between ticks.
func (r *Runner) Stop() { r.cancel() }

// Outcome returns the latest evaluated outcome.
func (r *Runner) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Run records the battle start, then steps the battle once per interval until
// it is decided or ctx is done.
//
// Postcondition: on a decided battle the result is recorded and the outcome
// returned with a nil error. On cancellation the battle is left unfinished and
// ctx.Err() is returned. Recorder errors end the run.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	summary := r.battle.Summary()
	summary.StartedAt = r.now().UTC()
	if err := r.recorder.BeginBattle(ctx, summary); err != nil {
		return Outcome{}, fmt.Errorf("recording battle start: %w", err)
	}
	r.logger.Info("battle started",
		zap.Strings("sides", summary.Sides),
		zap.Uint64("max_ticks", r.battle.MaxTicks()),
		zap.Duration("tick_interval", r.interval),
	)
	r.publish()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		out := r.battle.Outcome()
		r.setOutcome(out)
		if out.Decided {
			return out, r.finish(ctx, out)
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return out, r.interrupted(ctx)
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return out, r.interrupted(ctx)
		}

		report := r.battle.Step()
		if err := r.recorder.RecordTick(ctx, r.battle.ID(), report.Record()); err != nil {
			return out, fmt.Errorf("recording tick %d: %w", report.Tick, err)
		}
		r.publish()
	}
}

func (r *Runner) setOutcome(out Outcome) {
	r.mu.Lock()
	r.outcome = out
	r.mu.Unlock()
}

// publish sends the current frame to every sink. Sink failures are logged and
// do not stop the battle.
func (r *Runner) publish() {
	if len(r.sinks) == 0 {
		return
	}
	f := r.battle.Frame()
	for _, s := range r.sinks {
		if err := s.WriteFrame(f); err != nil {
			r.logger.Warn("frame sink failed", zap.Uint64("tick", f.Tick), zap.Error(err))
		}
	}
}

func (r *Runner) finish(ctx context.Context, out Outcome) error {
	res := storage.Result{
		Winner:     out.Winner,
		Draw:       out.Draw,
		Ticks:      out.Ticks,
		FinishedAt: r.now().UTC(),
	}
	if err := r.recorder.FinishBattle(ctx, r.battle.ID(), res); err != nil {
		return fmt.Errorf("recording battle result: %w", err)
	}
	r.logger.Info("battle finished",
		zap.String("winner", out.Winner),
		zap.Bool("draw", out.Draw),
		zap.Uint64("ticks", out.Ticks),
	)
	return nil
}

func (r *Runner) interrupted(ctx context.Context) error {
	r.logger.Info("battle interrupted", zap.Uint64("tick", r.battle.Tick()))
	return ctx.Err()
}
