package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/veristat-labs/veristat/internal/worker"
	"github.com/veristat-labs/veristat/pkg/core"
)

// StartRun creates a fresh report for the project and dispatches one task
// per requested algorithm. Any previous report for the project is replaced.
// Returns once the report is persisted and in RunningTests; dispatch runs
// asynchronously.
func (e *Engine) StartRun(ctx context.Context, projectID string, req RunRequest) (*core.Report, error) {
	if len(req.Algorithms) == 0 {
		return nil, ErrNoAlgorithms
	}
	seen := make(map[string]struct{}, len(req.Algorithms))
	for _, alg := range req.Algorithms {
		if _, ok := seen[alg.AlgorithmID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAlgorithm, alg.AlgorithmID)
		}
		seen[alg.AlgorithmID] = struct{}{}
	}

	now := time.Now().UTC()
	report := &core.Report{
		ID:              uuid.New().String(),
		ProjectRef:      projectID,
		ProjectSnapshot: req.ProjectSnapshot,
		Status:          core.ReportStatusNone,
		TimeStart:       now,
		InputBlockData:  req.InputBlockData,
		Pages:           req.Pages,
	}
	for _, alg := range req.Algorithms {
		report.Tests = append(report.Tests, &core.TestTask{
			ID:            uuid.New().String(),
			ReportID:      report.ID,
			AlgorithmID:   alg.AlgorithmID,
			TestArguments: alg.TestArguments,
			Status:        core.TaskStatusPending,
			TimeStart:     now,
		})
	}

	lock := e.reportLock(report.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.store.CreateReport(report); err != nil {
		return nil, err
	}
	if err := e.transition(report, core.ReportStatusRunningTests, ""); err != nil {
		return nil, err
	}

	e.logger.Info("report run started",
		"report_id", report.ID,
		"project_id", projectID,
		"tasks", len(report.Tests))

	go e.dispatchTasks(context.WithoutCancel(ctx), report)

	return report, nil
}

// dispatchTasks hands each task to the worker. A failed dispatch marks that
// task Error; the remaining tasks still go out. If every dispatch fails the
// run proceeds straight to the render stage.
func (e *Engine) dispatchTasks(ctx context.Context, report *core.Report) {
	for _, task := range report.Tests {
		job := worker.Job{
			ReportID:      report.ID,
			TaskID:        task.ID,
			AlgorithmID:   task.AlgorithmID,
			TestArguments: task.TestArguments,
		}
		if err := e.dispatcher.Dispatch(ctx, job); err != nil {
			e.logger.Error("task dispatch failed",
				"report_id", report.ID,
				"task_id", task.ID,
				"algorithm_id", task.AlgorithmID,
				"error", err)
			e.failTaskDispatch(task.ID, err)
		}
	}
}

// failTaskDispatch marks a task Error after a failed hand-off and advances
// the run if that made every task terminal.
func (e *Engine) failTaskDispatch(taskID string, dispatchErr error) {
	task, err := e.store.GetTask(taskID)
	if err != nil {
		e.logger.Error("failed to load task after dispatch failure", "task_id", taskID, "error", err)
		return
	}

	lock := e.reportLock(task.ReportID)
	lock.Lock()
	defer lock.Unlock()

	if task.Status.Terminal() {
		return
	}
	task.Status = core.TaskStatusError
	task.ErrorMessages = append(task.ErrorMessages, core.ErrorMessage{
		Severity:    core.SeverityCritical,
		Description: dispatchErr.Error(),
		Origin:      "dispatcher",
	})
	if err := e.store.UpdateTask(task); err != nil {
		e.logger.Error("failed to persist dispatch failure", "task_id", taskID, "error", err)
		return
	}

	e.advanceIfComplete(task.ReportID)
}

// CancelRun cancels a live run: every Pending or Running task becomes
// Cancelled and the run proceeds to the render stage with whatever results
// exist. Refused once the run has left RunningTests.
func (e *Engine) CancelRun(projectID string) (*core.Report, error) {
	report, err := e.store.GetReportByProject(projectID)
	if err != nil {
		return nil, err
	}

	lock := e.reportLock(report.ID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: the run may have advanced.
	report, err = e.store.GetReport(report.ID)
	if err != nil {
		return nil, err
	}
	if report.Status != core.ReportStatusRunningTests {
		return nil, ErrCancelRefused
	}

	for _, task := range report.Tests {
		if task.Status.Terminal() {
			continue
		}
		task.Status = core.TaskStatusCancelled
		if err := e.store.UpdateTask(task); err != nil {
			return nil, err
		}
	}

	e.logger.Info("report run cancelled", "report_id", report.ID, "project_id", projectID)

	if report.AllTasksTerminal() {
		if err := e.beginGenerating(report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// DeleteReport removes the project's report, its tasks, and the captured
// document. In-flight worker callbacks for the deleted tasks fail with
// not-found and are dropped.
func (e *Engine) DeleteReport(projectID string) error {
	report, err := e.store.GetReportByProject(projectID)
	if err != nil {
		return err
	}

	lock := e.reportLock(report.ID)
	lock.Lock()
	defer lock.Unlock()

	if report.OutputPath != "" {
		if err := os.Remove(report.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Error("failed to remove report document",
				"report_id", report.ID,
				"path", report.OutputPath,
				"error", err)
		}
	}

	if err := e.store.DeleteReportByProject(projectID); err != nil {
		return err
	}

	e.logger.Info("report deleted", "report_id", report.ID, "project_id", projectID)
	return nil
}

// Status returns the project's current report.
func (e *Engine) Status(projectID string) (*core.Report, error) {
	return e.store.GetReportByProject(projectID)
}
