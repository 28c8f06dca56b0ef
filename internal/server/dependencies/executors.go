package dependencies

import (
	"context"
	"reflect"

	"github.com/zhenzou/executors"

	"github.com/parrotgw/parrot/internal/log"
)

// ErrorHandler logs task panics and errors from the shared pool.
type ErrorHandler struct{}

func (h *ErrorHandler) CatchError(_ executors.Runnable, err error) {
	log.Error(context.Background(), "run runnable error", log.Cause(err))
}

// RejectionHandler logs tasks rejected by a saturated pool; rejection is not
// treated as an error.
type RejectionHandler struct{}

func (h *RejectionHandler) RejectExecution(runnable executors.Runnable, _ executors.Executor) error {
	log.Warn(context.Background(), "runnable rejected by executor",
		log.String("runnable", reflect.ValueOf(runnable).String()))

	return nil
}

// NewExecutors builds the shared bounded pool that runs scheduled work such as
// the TTL sweep.
func NewExecutors(logger *log.Logger) executors.ScheduledExecutor {
	return executors.NewPoolScheduleExecutor(
		executors.WithMaxConcurrent(64),
		executors.WithMaxBlockingTasks(1024),
		executors.WithErrorHandler(&ErrorHandler{}),
		executors.WithRejectionHandler(&RejectionHandler{}),
		executors.WithLogger(logger.AsSlog()),
	)
}
