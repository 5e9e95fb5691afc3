package engine

import (
	"context"

	"github.com/veristat-labs/veristat/pkg/core"
)

// beginGenerating transitions the run into GeneratingReport and kicks off
// the render stage. Caller must hold the report lock.
func (e *Engine) beginGenerating(report *core.Report) error {
	if err := e.transition(report, core.ReportStatusGenerating, ""); err != nil {
		return err
	}

	e.logger.Info("report generation started", "report_id", report.ID, "project_id", report.ProjectRef)

	go e.renderReport(report)
	return nil
}

// renderReport runs the render stage and feeds the outcome back into the
// state machine. Task failures never reach here; only the render itself can
// drive the run to ReportError.
func (e *Engine) renderReport(report *core.Report) {
	outputPath, err := e.renderer.Render(context.Background(), report)
	e.OnRenderComplete(report.ID, outputPath, err)
}

// OnRenderComplete records the render outcome: ReportGenerated with the
// document path and timings on success, ReportError with the retained
// diagnostic on failure.
func (e *Engine) OnRenderComplete(reportID, outputPath string, renderErr error) {
	lock := e.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	report, err := e.store.GetReport(reportID)
	if err != nil {
		e.logger.Error("failed to load report after render", "report_id", reportID, "error", err)
		return
	}
	if report.Status != core.ReportStatusGenerating {
		e.logger.Error("render completed outside the generating state",
			"report_id", reportID,
			"status", report.Status)
		return
	}

	if renderErr != nil {
		e.logger.Error("report generation failed", "report_id", reportID, "error", renderErr)
		if err := e.transition(report, core.ReportStatusError, renderErr.Error()); err != nil {
			e.logger.Error("failed to record report error", "report_id", reportID, "error", err)
		}
		return
	}

	var totalTestTime int64
	for _, task := range report.Tests {
		totalTestTime += task.TimeTaken
	}
	timeTaken := millisSince(report.TimeStart)

	if err := e.store.FinishReport(reportID, outputPath, timeTaken, totalTestTime); err != nil {
		e.logger.Error("failed to finish report", "report_id", reportID, "error", err)
		if err := e.transition(report, core.ReportStatusError, "failed to persist report outcome: "+err.Error()); err != nil {
			e.logger.Error("failed to record report error", "report_id", reportID, "error", err)
		}
		return
	}
	e.publish(reportID, core.ReportStatusGenerated)

	e.logger.Info("report generated",
		"report_id", reportID,
		"project_id", report.ProjectRef,
		"output_path", outputPath,
		"time_taken_ms", timeTaken)
}
