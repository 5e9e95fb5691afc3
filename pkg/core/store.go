package core

import "errors"

// ErrNotFound is returned by Store lookups when no matching row exists.
var ErrNotFound = errors.New("not found")

// Store persists reports and their test tasks. Implementations live in
// internal/state (SQLite and Postgres).
type Store interface {
	// CreateReport inserts the report and all of its tasks. Any existing
	// report for the same project is replaced: a new run resets the report.
	CreateReport(report *Report) error

	// GetReport retrieves a report with its tasks by report id.
	GetReport(id string) (*Report, error)

	// GetReportByProject retrieves the current report for a project.
	GetReportByProject(projectID string) (*Report, error)

	// UpdateReportStatus records a status transition. errMsg is retained on
	// the report when entering ReportError.
	UpdateReportStatus(id string, status ReportStatus, errMsg string) error

	// FinishReport records the successful outcome of the render stage.
	FinishReport(id, outputPath string, timeTaken, totalTestTime int64) error

	// DeleteReportByProject removes a project's report and its tasks.
	DeleteReportByProject(projectID string) error

	// GetTask retrieves a task by id.
	GetTask(id string) (*TestTask, error)

	// UpdateTask persists the task's mutable fields (status, progress,
	// timings, output, log file, error messages).
	UpdateTask(task *TestTask) error

	Close() error
}
