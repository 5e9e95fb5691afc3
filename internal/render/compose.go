package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/veristat-labs/veristat/internal/executor"
	"github.com/veristat-labs/veristat/pkg/core"
)

// compose assembles the full report page: every widget of every page in
// layout order, with the viewer bundle inlined. A widget whose compile or
// execution fails renders as an inline error placeholder; composition never
// fails as a whole.
func (s *Service) compose(report *core.Report) string {
	testResults := make(map[string]any, len(report.Tests))
	for _, task := range report.Tests {
		if task.Output != nil {
			testResults[task.AlgorithmID] = task.Output
		}
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<style>\n")
	b.WriteString(s.assets.CSS)
	b.WriteString("\n</style>\n</head>\n<body>\n")

	for _, pg := range report.Pages {
		b.WriteString("<div class=\"report-page\">\n")
		for _, ref := range pg.Widgets {
			b.WriteString(s.composeWidget(report, ref, testResults))
			b.WriteByte('\n')
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("<script>\n")
	b.WriteString(s.assets.JS)
	b.WriteString("\n</script>\n</body>\n</html>\n")
	return b.String()
}

func (s *Service) composeWidget(report *core.Report, ref core.WidgetRef, testResults map[string]any) string {
	source, err := s.registry.Source(ref.PluginID, ref.WidgetID)
	if err != nil {
		return s.widgetFailure(report, ref, err)
	}

	compiled, err := s.cache.GetOrCompile(source, s.registry.CompileContext(ref.PluginID, ref.WidgetID))
	if err != nil {
		return s.widgetFailure(report, ref, err)
	}

	output, err := s.executor.Execute(compiled, executor.Input{
		Properties:     ref.BoundProperties,
		TestResults:    testResults,
		Project:        report.ProjectSnapshot,
		InputBlockData: report.InputBlockData,
	})
	if err != nil {
		return s.widgetFailure(report, ref, err)
	}

	return fmt.Sprintf("<div class=\"widget\" data-plugin=%q data-widget=%q>%s</div>",
		ref.PluginID, ref.WidgetID, output.HTML)
}

// widgetFailure renders the inline placeholder for one broken widget slot.
func (s *Service) widgetFailure(report *core.Report, ref core.WidgetRef, cause error) string {
	s.logger.Error("widget failed to render",
		"report_id", report.ID,
		"plugin_id", ref.PluginID,
		"widget_id", ref.WidgetID,
		"error", cause)

	return fmt.Sprintf(
		"<div class=\"widget widget-error\" data-plugin=%q data-widget=%q>"+
			"Widget failed to render"+
			"<span class=\"widget-error-source\">%s/%s: %s</span>"+
			"</div>",
		ref.PluginID, ref.WidgetID,
		html.EscapeString(ref.PluginID), html.EscapeString(ref.WidgetID),
		html.EscapeString(cause.Error()))
}
