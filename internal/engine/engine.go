// Package engine drives the report lifecycle: it creates the run, dispatches
// tasks to the worker, applies task updates, and hands the finished run to
// the render stage. All status transitions for one report are serialized
// under a per-report lock, and every transition publishes exactly one
// notifier event.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/veristat-labs/veristat/internal/notifier"
	"github.com/veristat-labs/veristat/internal/worker"
	"github.com/veristat-labs/veristat/pkg/core"
)

var (
	// ErrNoAlgorithms is returned by StartRun when the request names none.
	ErrNoAlgorithms = errors.New("run request contains no algorithms")

	// ErrDuplicateAlgorithm is returned by StartRun when the request names an
	// algorithm twice. Widget inputs key test results by algorithm id, so a
	// run carries at most one task per algorithm.
	ErrDuplicateAlgorithm = errors.New("run request repeats an algorithm")

	// ErrTerminalTask is returned when an update arrives for a task that has
	// already reached a terminal status.
	ErrTerminalTask = errors.New("task already terminal")

	// ErrCancelRefused is returned when cancellation arrives after the run
	// has left RunningTests.
	ErrCancelRefused = errors.New("run is not cancellable")
)

// Renderer produces the report document for a finished run and returns the
// path it was written to.
type Renderer interface {
	Render(ctx context.Context, report *core.Report) (string, error)
}

// AlgorithmRequest names one algorithm to run, with its argument snapshot.
type AlgorithmRequest struct {
	AlgorithmID   string         `json:"algorithmId"`
	TestArguments map[string]any `json:"testArguments,omitempty"`
}

// RunRequest describes a report run to start.
type RunRequest struct {
	Algorithms      []AlgorithmRequest `json:"algorithms"`
	ProjectSnapshot map[string]any     `json:"projectSnapshot,omitempty"`
	InputBlockData  map[string]any     `json:"inputBlockData,omitempty"`
	Pages           []core.Page        `json:"pages,omitempty"`
}

// Engine owns the report state machine.
type Engine struct {
	store      core.Store
	dispatcher worker.Dispatcher
	renderer   Renderer
	notifier   *notifier.Notifier
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine. A nil logger discards output.
func New(store core.Store, dispatcher worker.Dispatcher, renderer Renderer, n *notifier.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		renderer:   renderer,
		notifier:   n,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// reportLock returns the mutex serializing transitions for one report.
// Locks are never removed; the map grows by one entry per report id seen.
func (e *Engine) reportLock(reportID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[reportID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[reportID] = lock
	}
	return lock
}

// transition moves the report along one legal edge, persists it, and
// publishes the event. Caller must hold the report lock.
func (e *Engine) transition(report *core.Report, to core.ReportStatus, errMsg string) error {
	if !core.CanTransition(report.Status, to) {
		return errors.New("illegal transition from " + string(report.Status) + " to " + string(to))
	}
	if err := e.store.UpdateReportStatus(report.ID, to, errMsg); err != nil {
		return err
	}
	report.Status = to
	report.ErrorMessage = errMsg
	e.publish(report.ID, to)
	return nil
}

func (e *Engine) publish(reportID string, status core.ReportStatus) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(notifier.Event{
		ReportID:  reportID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

func millisSince(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
