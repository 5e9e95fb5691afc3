// Package render turns a finished report into its captured PDF document.
// A report composes into one HTML page served over a loopback surface; a
// headless browser session navigates there, waits for the viewer's ready
// signal, and prints the document. Concurrency is bounded by a global
// session semaphore, and renders for the same project are serialized so
// regeneration overwrites deterministically.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/veristat-labs/veristat/internal/bundle"
	"github.com/veristat-labs/veristat/internal/executor"
	"github.com/veristat-labs/veristat/internal/registry"
	"github.com/veristat-labs/veristat/pkg/core"
)

// DocumentName is the fixed file name of a captured report document.
const DocumentName = "report.pdf"

// Options configure the render service.
type Options struct {
	// ReportsDir is the root directory documents are written under.
	ReportsDir string

	// Timeout bounds one capture session, navigation through print.
	Timeout time.Duration

	// MaxSessions caps concurrent browser sessions.
	MaxSessions int
}

// Service renders report documents.
type Service struct {
	cache    *bundle.Cache
	executor *executor.Executor
	registry registry.Registry
	capturer Capturer
	surface  *Surface
	assets   *ViewerAssets

	sem        *semaphore.Weighted
	timeout    time.Duration
	reportsDir string
	logger     *slog.Logger

	mu           sync.Mutex
	projectLocks map[string]*sync.Mutex
}

// NewService creates the render service. A nil logger discards output.
func NewService(cache *bundle.Cache, exec *executor.Executor, reg registry.Registry,
	capturer Capturer, surface *Surface, assets *ViewerAssets, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Service{
		cache:        cache,
		executor:     exec,
		registry:     reg,
		capturer:     capturer,
		surface:      surface,
		assets:       assets,
		sem:          semaphore.NewWeighted(int64(opts.MaxSessions)),
		timeout:      opts.Timeout,
		reportsDir:   opts.ReportsDir,
		logger:       logger,
	}
}

// DocumentPath returns the deterministic output location for a project.
func (s *Service) DocumentPath(projectID string) string {
	return filepath.Join(s.reportsDir, projectID, DocumentName)
}

// Render composes the report, captures it, and writes the document to the
// project's output path, overwriting any previous document.
func (s *Service) Render(ctx context.Context, report *core.Report) (string, error) {
	lock := s.projectLock(report.ProjectRef)
	lock.Lock()
	defer lock.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", &CaptureFailureError{ReportID: report.ID, Cause: err}
	}
	defer s.sem.Release(1)

	started := time.Now()
	page := s.compose(report)

	url, token := s.surface.Register(page)
	defer s.surface.Release(token)

	captureCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pdf, err := s.capturer.CapturePDF(captureCtx, url)
	if err != nil {
		if errors.Is(captureCtx.Err(), context.DeadlineExceeded) {
			return "", &RenderTimeoutError{ReportID: report.ID, Timeout: s.timeout.String()}
		}
		return "", &CaptureFailureError{ReportID: report.ID, Cause: err}
	}

	outputPath := s.DocumentPath(report.ProjectRef)
	if err := writeDocument(outputPath, pdf); err != nil {
		return "", &PersistFailureError{ReportID: report.ID, Path: outputPath, Cause: err}
	}

	s.logger.Info("report document captured",
		"report_id", report.ID,
		"project_id", report.ProjectRef,
		"path", outputPath,
		"bytes", len(pdf),
		"elapsed_ms", time.Since(started).Milliseconds())

	return outputPath, nil
}

// writeDocument writes atomically: a temp file in the target directory,
// renamed over the previous document.
func writeDocument(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create temp document: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move document into place: %w", err)
	}
	return nil
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectLocks == nil {
		s.projectLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := s.projectLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.projectLocks[projectID] = lock
	}
	return lock
}
