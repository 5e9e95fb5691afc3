package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veristat-labs/veristat/pkg/core"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport(projectID string) *core.Report {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Report{
		ID:         "report-" + projectID,
		ProjectRef: projectID,
		ProjectSnapshot: map[string]any{
			"name":  "Credit Scoring Model",
			"owner": "risk-team",
		},
		Status:    core.ReportStatusRunningTests,
		TimeStart: now,
		InputBlockData: map[string]any{
			"threshold": "0.8",
		},
		Pages: []core.Page{
			{Widgets: []core.WidgetRef{
				{PluginID: "fairness", WidgetID: "summary", BoundProperties: map[string]string{"title": "Overview"}},
			}},
		},
		Tests: []*core.TestTask{
			{
				ID:          projectID + "-task-1",
				ReportID:    "report-" + projectID,
				AlgorithmID: "fairness-metrics",
				TestArguments: map[string]any{
					"protected": "gender",
				},
				Status:    core.TaskStatusPending,
				TimeStart: now,
			},
			{
				ID:          projectID + "-task-2",
				ReportID:    "report-" + projectID,
				AlgorithmID: "drift-check",
				Status:      core.TaskStatusPending,
				TimeStart:   now,
			},
		},
	}
}

func TestCreateAndGetReport(t *testing.T) {
	store := openTestStore(t)

	report := sampleReport("proj-1")
	require.NoError(t, store.CreateReport(report))

	got, err := store.GetReport(report.ID)
	require.NoError(t, err)

	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, report.ProjectRef, got.ProjectRef)
	assert.Equal(t, core.ReportStatusRunningTests, got.Status)
	assert.Equal(t, "Credit Scoring Model", got.ProjectSnapshot["name"])
	assert.Equal(t, "0.8", got.InputBlockData["threshold"])
	require.Len(t, got.Pages, 1)
	require.Len(t, got.Pages[0].Widgets, 1)
	assert.Equal(t, "fairness", got.Pages[0].Widgets[0].PluginID)
	assert.Equal(t, "Overview", got.Pages[0].Widgets[0].BoundProperties["title"])

	require.Len(t, got.Tests, 2)
	assert.Equal(t, "proj-1-task-1", got.Tests[0].ID)
	assert.Equal(t, "proj-1-task-2", got.Tests[1].ID)
	assert.Equal(t, "gender", got.Tests[0].TestArguments["protected"])
}

func TestGetReportByProject(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.CreateReport(sampleReport("proj-a")))
	require.NoError(t, store.CreateReport(sampleReport("proj-b")))

	got, err := store.GetReportByProject("proj-b")
	require.NoError(t, err)
	assert.Equal(t, "report-proj-b", got.ID)

	_, err = store.GetReportByProject("proj-missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateReportReplacesExisting(t *testing.T) {
	store := openTestStore(t)

	first := sampleReport("proj-1")
	require.NoError(t, store.CreateReport(first))

	second := sampleReport("proj-1")
	second.ID = "report-proj-1-v2"
	for _, task := range second.Tests {
		task.ID = task.ID + "-v2"
		task.ReportID = second.ID
	}
	require.NoError(t, store.CreateReport(second))

	got, err := store.GetReportByProject("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "report-proj-1-v2", got.ID)

	// Old report and its tasks are gone.
	_, err = store.GetReport(first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetTask("proj-1-task-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateReportStatus(t *testing.T) {
	store := openTestStore(t)

	report := sampleReport("proj-1")
	require.NoError(t, store.CreateReport(report))

	require.NoError(t, store.UpdateReportStatus(report.ID, core.ReportStatusGenerating, ""))
	got, err := store.GetReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReportStatusGenerating, got.Status)

	require.NoError(t, store.UpdateReportStatus(report.ID, core.ReportStatusError, "capture failed"))
	got, err = store.GetReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReportStatusError, got.Status)
	assert.Equal(t, "capture failed", got.ErrorMessage)

	err = store.UpdateReportStatus("missing", core.ReportStatusGenerating, "")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFinishReport(t *testing.T) {
	store := openTestStore(t)

	report := sampleReport("proj-1")
	require.NoError(t, store.CreateReport(report))

	require.NoError(t, store.FinishReport(report.ID, "reports/proj-1/report.pdf", 4200, 3100))

	got, err := store.GetReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReportStatusGenerated, got.Status)
	assert.Equal(t, "reports/proj-1/report.pdf", got.OutputPath)
	assert.Equal(t, int64(4200), got.TimeTaken)
	assert.Equal(t, int64(3100), got.TotalTestTimeTaken)
}

func TestDeleteReportByProject(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.CreateReport(sampleReport("proj-1")))
	require.NoError(t, store.DeleteReportByProject("proj-1"))

	_, err := store.GetReportByProject("proj-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = store.DeleteReportByProject("proj-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateTask(t *testing.T) {
	store := openTestStore(t)

	report := sampleReport("proj-1")
	require.NoError(t, store.CreateReport(report))

	task, err := store.GetTask("proj-1-task-1")
	require.NoError(t, err)

	task.Status = core.TaskStatusSuccess
	task.Progress = 100
	task.TimeTaken = 1234
	task.Output = map[string]any{"score": "0.91"}
	task.LogFile = "logs/task-1.log"
	task.ErrorMessages = []core.ErrorMessage{
		{Severity: core.SeverityWarning, Description: "small sample size"},
	}
	require.NoError(t, store.UpdateTask(task))

	got, err := store.GetTask("proj-1-task-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, int64(1234), got.TimeTaken)
	assert.Equal(t, "0.91", got.Output["score"])
	assert.Equal(t, "logs/task-1.log", got.LogFile)
	require.Len(t, got.ErrorMessages, 1)
	assert.Equal(t, core.SeverityWarning, got.ErrorMessages[0].Severity)
}

func TestEmptyJSONColumnsRoundTripToNil(t *testing.T) {
	store := openTestStore(t)

	report := &core.Report{
		ID:         "bare",
		ProjectRef: "proj-bare",
		Status:     core.ReportStatusNone,
		TimeStart:  time.Now().UTC(),
	}
	require.NoError(t, store.CreateReport(report))

	got, err := store.GetReport("bare")
	require.NoError(t, err)
	assert.Nil(t, got.ProjectSnapshot)
	assert.Nil(t, got.InputBlockData)
	assert.Nil(t, got.Pages)
	assert.Empty(t, got.Tests)
}

func TestInMemoryStoreSharedAcrossCallers(t *testing.T) {
	store := openTestStore(t)

	report := sampleReport("proj-1")
	require.NoError(t, store.CreateReport(report))

	// Concurrent callers must all see the same database. With an uncapped
	// pool each new in-memory connection is a separate empty database and
	// these reads fail with "no such table".
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.GetTask("proj-1-task-1")
			errs <- err
			_, err = store.GetReportByProject("proj-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	store := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t,
		`UPDATE reports SET status = $1, error_message = $2 WHERE id = $3`,
		store.rebind(`UPDATE reports SET status = ?, error_message = ? WHERE id = ?`),
	)

	sqliteStore := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t,
		`SELECT 1 WHERE a = ?`,
		sqliteStore.rebind(`SELECT 1 WHERE a = ?`),
	)
}
