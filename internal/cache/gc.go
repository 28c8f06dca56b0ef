package cache

import (
	"context"

	"github.com/zhenzou/executors"

	"github.com/parrotgw/parrot/internal/log"
)

// SweepWorker periodically deletes expired non-golden entries from the
// indexed tier.
type SweepWorker struct {
	Engine     *Engine
	Executor   executors.ScheduledExecutor
	CancelFunc context.CancelFunc
}

// NewSweepWorker builds the sweep worker on the shared scheduled executor.
func NewSweepWorker(engine *Engine, executor executors.ScheduledExecutor) *SweepWorker {
	return &SweepWorker{
		Engine:   engine,
		Executor: executor,
	}
}

func (w *SweepWorker) Start(ctx context.Context) error {
	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(
		w.sweep,
		executors.CRONRule{Expr: w.Engine.Config().SweepCRON},
	)
	if err != nil {
		return err
	}

	w.CancelFunc = cancelFunc

	log.Info(ctx, "cache sweep worker started", log.String("cron", w.Engine.Config().SweepCRON))

	return nil
}

func (w *SweepWorker) Stop(context.Context) error {
	if w.CancelFunc != nil {
		w.CancelFunc()
	}

	return nil
}

func (w *SweepWorker) sweep(ctx context.Context) {
	deleted, err := w.Engine.SweepExpired(ctx)
	if err != nil {
		log.Warn(ctx, "cache sweep failed", log.Cause(err))
		return
	}

	if deleted > 0 {
		log.Info(ctx, "cache sweep removed expired entries", log.Int64("deleted", deleted))
	}
}
