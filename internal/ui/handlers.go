package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veristat-labs/veristat/internal/compiler"
	"github.com/veristat-labs/veristat/internal/engine"
	"github.com/veristat-labs/veristat/internal/worker"
	"github.com/veristat-labs/veristat/pkg/core"
)

// noLogsPlaceholder is returned as logContents for a task without a log.
const noLogsPlaceholder = "No logs available for this test."

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func projectID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "projectID")
	if !projectIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "malformed project id")
		return "", false
	}
	return id, true
}

// handleStartRun triggers a report run for a project.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	var req engine.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := s.engine.StartRun(r.Context(), id, req)
	if errors.Is(err, engine.ErrNoAlgorithms) || errors.Is(err, engine.ErrDuplicateAlgorithm) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to start run", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	writeJSON(w, http.StatusAccepted, report)
}

// handleDeleteReport cancels a live run and removes the report with its
// document.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if _, err := s.engine.CancelRun(id); err != nil &&
		!errors.Is(err, engine.ErrCancelRefused) && !errors.Is(err, core.ErrNotFound) {
		s.logger.Error("failed to cancel run before deletion", "project_id", id, "error", err)
	}

	err := s.engine.DeleteReport(id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no report for project")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete report", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete report")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleReportStatus returns the project's current report.
func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	report, err := s.engine.Status(id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no report for project")
		return
	}
	if err != nil {
		s.logger.Error("failed to load report", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleReportDocument serves the captured document inline.
func (s *Server) handleReportDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	report, err := s.engine.Status(id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no report for project")
		return
	}
	if err != nil {
		s.logger.Error("failed to load report", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	if report.Status != core.ReportStatusGenerated {
		writeError(w, http.StatusInternalServerError,
			"report document is not available in status "+string(report.Status))
		return
	}

	data, err := os.ReadFile(report.OutputPath)
	if err != nil {
		s.logger.Error("report document missing",
			"project_id", id,
			"path", report.OutputPath,
			"error", err)
		writeError(w, http.StatusInternalServerError, "report document is missing")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", id+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type taskLogs struct {
	AlgorithmID string `json:"algorithmId"`
	LogContents string `json:"logContents"`
}

// handleReportLogs returns per-task worker logs.
func (s *Server) handleReportLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	report, err := s.engine.Status(id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no report for project")
		return
	}
	if err != nil {
		s.logger.Error("failed to load report", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if len(report.Tests) == 0 {
		writeError(w, http.StatusNotFound, "report has no tests")
		return
	}

	logs := make([]taskLogs, 0, len(report.Tests))
	for _, task := range report.Tests {
		entry := taskLogs{AlgorithmID: task.AlgorithmID, LogContents: noLogsPlaceholder}
		if task.LogFile != "" {
			if data, err := os.ReadFile(task.LogFile); err == nil {
				entry.LogContents = string(data)
			}
		}
		logs = append(logs, entry)
	}

	writeJSON(w, http.StatusOK, logs)
}

// handleTaskUpdate is the worker callback route.
func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var update worker.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !update.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown task status "+string(update.Status))
		return
	}

	err := s.engine.OnTaskUpdate(taskID, update)
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown task")
	case errors.Is(err, engine.ErrTerminalTask):
		writeError(w, http.StatusConflict, "task already terminal")
	case err != nil:
		s.logger.Error("failed to apply task update", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply task update")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type compileCheckResponse struct {
	Key         string           `json:"key"`
	Frontmatter *core.WidgetMeta `json:"frontmatter"`
}

// handleCompileCheck compiles a widget and returns its diagnostics. The
// source comes from the request body, or from the plugin registry when the
// body is empty.
func (s *Server) handleCompileCheck(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")
	widgetID := chi.URLParam(r, "widgetID")

	source, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(source) == 0 {
		source, err = s.registry.Source(pluginID, widgetID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
	}

	compiled, err := s.compiler.Compile(source, s.registry.CompileContext(pluginID, widgetID))
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": compileErr,
			})
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, compileCheckResponse{
		Key:         compiled.Key,
		Frontmatter: compiled.Frontmatter,
	})
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, 4<<20))
}
