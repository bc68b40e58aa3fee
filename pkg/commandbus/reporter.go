package commandbus

import (
	"fmt"

	"go.uber.org/zap"
)

// reportResult is the task delivering one outcome to the caller's callback.
type reportResult struct {
	callback CommandCallback
	result   any
	failure  error
	logger   *zap.Logger
}

func (r reportResult) run() {
	if r.callback == nil {
		if r.failure != nil {
			r.logger.Warn("command_failed_without_callback", zap.Error(r.failure))
		}
		return
	}
	if r.failure != nil {
		r.callback.OnFailure(r.failure)
	} else {
		r.callback.OnSuccess(r.result)
	}
}

// report hands an outcome to the executor. An error means result delivery cannot be
// scheduled at all, which the publisher treats as fatal.
func report(executor Executor, logger *zap.Logger, callback CommandCallback, result any, failure error) error {
	task := reportResult{callback: callback, result: result, failure: failure, logger: logger}
	if err := executor.Execute(task.run); err != nil {
		return fmt.Errorf("failed to schedule result delivery: %w", err)
	}
	return nil
}
