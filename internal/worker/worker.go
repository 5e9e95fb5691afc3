// Package worker defines the boundary to the external algorithm worker.
// The pipeline dispatches one job message per test task; the worker reports
// progress and completion by calling back into the engine (the HTTP
// callback route in internal/ui). Jobs and results are explicit messages,
// never shared mutable state.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veristat-labs/veristat/pkg/core"
)

// Job is the dispatch message for one algorithm task.
type Job struct {
	ReportID      string         `json:"reportId"`
	TaskID        string         `json:"taskId"`
	AlgorithmID   string         `json:"algorithmId"`
	TestArguments map[string]any `json:"testArguments,omitempty"`
}

// TaskUpdate is the callback message the worker sends as a task progresses.
type TaskUpdate struct {
	Status        core.TaskStatus     `json:"status"`
	Progress      *int                `json:"progress,omitempty"`
	Output        map[string]any      `json:"output,omitempty"`
	ErrorMessages []core.ErrorMessage `json:"errorMessages,omitempty"`
	TimeTaken     *int64              `json:"timeTaken,omitempty"`
	LogFile       string              `json:"logFile,omitempty"`
}

// Dispatcher hands jobs to the worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// DispatchError reports a failed hand-off to the worker.
type DispatchError struct {
	TaskID     string
	StatusCode int
	Message    string
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dispatch of task %s rejected with status %d: %s", e.TaskID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("dispatch of task %s failed: %s", e.TaskID, e.Message)
}

// HTTPDispatcher posts jobs to the worker's jobs endpoint.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDispatcher creates a dispatcher for the worker at baseURL.
func NewHTTPDispatcher(baseURL string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Dispatch sends the job message. A non-2xx response is a DispatchError.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return &DispatchError{TaskID: job.TaskID, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DispatchError{
			TaskID:     job.TaskID,
			StatusCode: resp.StatusCode,
			Message:    string(detail),
		}
	}

	return nil
}
