// Package core defines the shared domain types for the report generation
// pipeline: reports, test tasks, compiled widget bundles, and the persistence
// Store interface. Components in internal/ operate on these types; keeping
// them here avoids import cycles between the engine, the stores, and the
// HTTP layer.
package core

import "time"

// ReportStatus represents the lifecycle state of a report.
type ReportStatus string

const (
	// ReportStatusNone is the initial state before any task is dispatched.
	ReportStatusNone ReportStatus = "NoReport"
	// ReportStatusRunningTests means at least one test task was dispatched
	// and not every task has reached a terminal status yet.
	ReportStatusRunningTests ReportStatus = "RunningTests"
	// ReportStatusGenerating means all tasks are terminal and the document
	// render stage is in progress.
	ReportStatusGenerating ReportStatus = "GeneratingReport"
	// ReportStatusGenerated is the terminal success state.
	ReportStatusGenerated ReportStatus = "ReportGenerated"
	// ReportStatusError is the terminal failure state. Only a fatal failure
	// in the render or capture stage drives a report here; individual task
	// failures do not.
	ReportStatusError ReportStatus = "ReportError"
)

// legalTransitions enumerates the only edges the state machine may follow.
var legalTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusNone:         {ReportStatusRunningTests},
	ReportStatusRunningTests: {ReportStatusGenerating},
	ReportStatusGenerating:   {ReportStatusGenerated, ReportStatusError},
}

// CanTransition reports whether moving from one status to another follows a
// legal edge.
func CanTransition(from, to ReportStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends a run. A new run resets the
// report; there is no automatic re-trigger out of a terminal state.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusGenerated || s == ReportStatusError
}

// Valid reports whether s is one of the five known report states.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusNone, ReportStatusRunningTests, ReportStatusGenerating,
		ReportStatusGenerated, ReportStatusError:
		return true
	}
	return false
}

// WidgetRef identifies one widget slot in a report page layout, together
// with the property values bound to it at report creation time.
type WidgetRef struct {
	PluginID        string            `json:"pluginId"`
	WidgetID        string            `json:"widgetId"`
	BoundProperties map[string]string `json:"boundProperties,omitempty"`
}

// Page is one page of the report layout snapshot. Widgets render in order.
type Page struct {
	Widgets []WidgetRef `json:"widgets"`
}

// Report is the aggregate result of one test run for a project.
type Report struct {
	ID         string `json:"id"`
	ProjectRef string `json:"projectRef"`

	// ProjectSnapshot is an immutable copy of the project configuration,
	// taken when the run was requested.
	ProjectSnapshot map[string]any `json:"projectSnapshot,omitempty"`

	Status ReportStatus `json:"status"`

	TimeStart time.Time `json:"timeStart"`
	// TimeTaken and TotalTestTimeTaken are recorded in milliseconds.
	TimeTaken          int64 `json:"timeTaken"`
	TotalTestTimeTaken int64 `json:"totalTestTimeTaken"`

	// InputBlockData is an opaque snapshot of user-supplied parameters.
	InputBlockData map[string]any `json:"inputBlockData,omitempty"`

	Pages []Page `json:"pages,omitempty"`

	// Tests holds one task per requested algorithm. The length is fixed at
	// creation and never changes afterward.
	Tests []*TestTask `json:"tests"`

	// OutputPath is the captured document location, set on ReportGenerated.
	OutputPath string `json:"outputPath,omitempty"`

	// ErrorMessage is the retained diagnostic when Status is ReportError.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// TaskByID returns the task with the given id, or nil.
func (r *Report) TaskByID(id string) *TestTask {
	for _, t := range r.Tests {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AllTasksTerminal reports whether every task has reached a terminal status.
// A report with zero tasks is never considered terminal-complete.
func (r *Report) AllTasksTerminal() bool {
	if len(r.Tests) == 0 {
		return false
	}
	for _, t := range r.Tests {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}
