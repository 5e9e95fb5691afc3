package core

import "time"

// TaskStatus represents the lifecycle state of a single algorithm task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "Pending"
	TaskStatusRunning   TaskStatus = "Running"
	TaskStatusCancelled TaskStatus = "Cancelled"
	TaskStatusSuccess   TaskStatus = "Success"
	TaskStatusError     TaskStatus = "Error"
)

// Terminal reports whether the task status is final. A terminal status is
// never overwritten by a later update.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCancelled || s == TaskStatusSuccess || s == TaskStatusError
}

// Valid reports whether s is one of the known task states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCancelled,
		TaskStatusSuccess, TaskStatusError:
		return true
	}
	return false
}

// Severity classifies an error message attached to a task.
type Severity string

const (
	SeverityInformation Severity = "information"
	SeverityWarning     Severity = "warning"
	SeverityCritical    Severity = "critical"
)

// ErrorMessage is one diagnostic recorded against a task by the worker or
// the pipeline itself.
type ErrorMessage struct {
	Code        string   `json:"code,omitempty"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	Component   string   `json:"component,omitempty"`
}

// TestTask is the execution record for one algorithm within a report.
// AlgorithmID and TestArguments are snapshots, immutable after creation.
type TestTask struct {
	ID            string         `json:"id"`
	ReportID      string         `json:"reportId"`
	AlgorithmID   string         `json:"algorithmId"`
	TestArguments map[string]any `json:"testArguments,omitempty"`

	Status TaskStatus `json:"status"`

	// Progress is 0-100 and never decreases while the task is Running.
	Progress int `json:"progress"`

	TimeStart time.Time `json:"timeStart"`
	// TimeTaken is recorded in milliseconds.
	TimeTaken int64 `json:"timeTaken"`

	// Output is the opaque result payload produced by the worker.
	Output map[string]any `json:"output,omitempty"`

	// LogFile is the path to the worker's execution log, if any.
	LogFile string `json:"logFile,omitempty"`

	ErrorMessages []ErrorMessage `json:"errorMessages,omitempty"`
}
