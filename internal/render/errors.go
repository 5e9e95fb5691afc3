package render

import "fmt"

// RenderTimeoutError reports that the browser session did not reach the
// ready signal within the configured deadline.
type RenderTimeoutError struct {
	ReportID string
	Timeout  string
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("report %s: render timed out after %s", e.ReportID, e.Timeout)
}

// CaptureFailureError reports a failed browser capture.
type CaptureFailureError struct {
	ReportID string
	Cause    error
}

func (e *CaptureFailureError) Error() string {
	return fmt.Sprintf("report %s: document capture failed: %v", e.ReportID, e.Cause)
}

func (e *CaptureFailureError) Unwrap() error {
	return e.Cause
}

// PersistFailureError reports that the captured document could not be
// written to its output location.
type PersistFailureError struct {
	ReportID string
	Path     string
	Cause    error
}

func (e *PersistFailureError) Error() string {
	return fmt.Sprintf("report %s: failed to persist document to %s: %v", e.ReportID, e.Path, e.Cause)
}

func (e *PersistFailureError) Unwrap() error {
	return e.Cause
}
