package engine

import (
	"github.com/veristat-labs/veristat/internal/worker"
	"github.com/veristat-labs/veristat/pkg/core"
)

// OnTaskUpdate applies a worker callback to a task. Updates arriving after
// the task reached a terminal status are rejected with ErrTerminalTask, and
// progress never moves backwards while the task is Running. When the update
// makes the last task terminal, the run advances to the render stage.
func (e *Engine) OnTaskUpdate(taskID string, update worker.TaskUpdate) error {
	if !update.Status.Valid() {
		return &worker.DispatchError{TaskID: taskID, Message: "unknown task status " + string(update.Status)}
	}

	task, err := e.store.GetTask(taskID)
	if err != nil {
		return err
	}

	lock := e.reportLock(task.ReportID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: another update may have landed first.
	task, err = e.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return ErrTerminalTask
	}

	task.Status = update.Status
	if update.Progress != nil {
		p := clampProgress(*update.Progress)
		if p > task.Progress {
			task.Progress = p
		}
	}
	if update.Status == core.TaskStatusSuccess {
		task.Progress = 100
	}
	if update.Status.Terminal() {
		if update.TimeTaken != nil {
			task.TimeTaken = *update.TimeTaken
		} else {
			task.TimeTaken = millisSince(task.TimeStart)
		}
	}
	if update.Output != nil {
		task.Output = update.Output
	}
	if len(update.ErrorMessages) > 0 {
		task.ErrorMessages = append(task.ErrorMessages, update.ErrorMessages...)
	}
	if update.LogFile != "" {
		task.LogFile = update.LogFile
	}

	if err := e.store.UpdateTask(task); err != nil {
		return err
	}

	e.logger.Debug("task updated",
		"task_id", task.ID,
		"report_id", task.ReportID,
		"status", task.Status,
		"progress", task.Progress)

	if task.Status.Terminal() {
		return e.advanceIfComplete(task.ReportID)
	}
	return nil
}

// advanceIfComplete moves the report into the render stage once every task
// is terminal. Caller must hold the report lock.
func (e *Engine) advanceIfComplete(reportID string) error {
	report, err := e.store.GetReport(reportID)
	if err != nil {
		return err
	}
	if report.Status != core.ReportStatusRunningTests || !report.AllTasksTerminal() {
		return nil
	}
	return e.beginGenerating(report)
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
