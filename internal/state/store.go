// Package state persists reports and test tasks with database migrations.
// SQLite backs single-node installs; Postgres backs shared deployments. Both
// run through the same SQL store with per-dialect placeholders and embedded
// goose migrations.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veristat-labs/veristat/pkg/core"
)

// Dialect selects the SQL flavor for placeholders and migrations.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements core.Store over a database/sql connection.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open connection. Callers normally use OpenSQLite or
// OpenPostgres instead; this constructor exists for tests that inject a
// prepared connection.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB exposes the underlying connection for migrations.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders into the dialect's native form. Queries in
// this package are written with ? and rebound for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateReport inserts the report and all of its tasks in one transaction.
// Any existing report for the same project is replaced first: a new run
// resets the report.
func (s *SQLStore) CreateReport(report *core.Report) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	snapshot, err := encodeJSON(report.ProjectSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode project snapshot: %w", err)
	}
	inputBlock, err := encodeJSON(report.InputBlockData)
	if err != nil {
		return fmt.Errorf("failed to encode input block data: %w", err)
	}
	pages, err := encodeJSON(report.Pages)
	if err != nil {
		return fmt.Errorf("failed to encode pages: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(s.rebind(`DELETE FROM reports WHERE project_ref = ?`), report.ProjectRef)
	if err != nil {
		return fmt.Errorf("failed to replace existing report: %w", err)
	}

	_, err = tx.Exec(s.rebind(
		`INSERT INTO reports (id, project_ref, project_snapshot, status, time_start, time_taken, total_test_time_taken, input_block_data, pages, output_path, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		report.ID, report.ProjectRef, snapshot, report.Status, report.TimeStart.UTC(),
		report.TimeTaken, report.TotalTestTimeTaken, inputBlock, pages,
		report.OutputPath, report.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	for _, task := range report.Tests {
		args, err := encodeJSON(task.TestArguments)
		if err != nil {
			return fmt.Errorf("failed to encode task arguments: %w", err)
		}
		output, err := encodeJSON(task.Output)
		if err != nil {
			return fmt.Errorf("failed to encode task output: %w", err)
		}
		errMsgs, err := encodeJSON(task.ErrorMessages)
		if err != nil {
			return fmt.Errorf("failed to encode task error messages: %w", err)
		}

		_, err = tx.Exec(s.rebind(
			`INSERT INTO test_tasks (id, report_id, algorithm_id, test_arguments, status, progress, time_start, time_taken, output, log_file, error_messages)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			task.ID, task.ReportID, task.AlgorithmID, args, task.Status,
			task.Progress, task.TimeStart.UTC(), task.TimeTaken, output,
			task.LogFile, errMsgs,
		)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetReport retrieves a report with its tasks by report id.
func (s *SQLStore) GetReport(id string) (*core.Report, error) {
	return s.queryReport(`WHERE id = ?`, id)
}

// GetReportByProject retrieves the current report for a project.
func (s *SQLStore) GetReportByProject(projectID string) (*core.Report, error) {
	return s.queryReport(`WHERE project_ref = ?`, projectID)
}

func (s *SQLStore) queryReport(where string, arg string) (*core.Report, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	report := &core.Report{}
	var snapshot, inputBlock, pages, outputPath, errMsg sql.NullString
	var timeStart time.Time

	err := s.db.QueryRow(s.rebind(
		`SELECT id, project_ref, project_snapshot, status, time_start, time_taken, total_test_time_taken, input_block_data, pages, output_path, error_message
		 FROM reports `+where),
		arg,
	).Scan(&report.ID, &report.ProjectRef, &snapshot, &report.Status, &timeStart,
		&report.TimeTaken, &report.TotalTestTimeTaken, &inputBlock, &pages,
		&outputPath, &errMsg)

	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	report.TimeStart = timeStart.UTC()
	report.OutputPath = outputPath.String
	report.ErrorMessage = errMsg.String
	if err := decodeJSON(snapshot, &report.ProjectSnapshot); err != nil {
		return nil, fmt.Errorf("failed to decode project snapshot: %w", err)
	}
	if err := decodeJSON(inputBlock, &report.InputBlockData); err != nil {
		return nil, fmt.Errorf("failed to decode input block data: %w", err)
	}
	if err := decodeJSON(pages, &report.Pages); err != nil {
		return nil, fmt.Errorf("failed to decode pages: %w", err)
	}

	tasks, err := s.tasksForReport(report.ID)
	if err != nil {
		return nil, err
	}
	report.Tests = tasks

	return report, nil
}

func (s *SQLStore) tasksForReport(reportID string) ([]*core.TestTask, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT id, report_id, algorithm_id, test_arguments, status, progress, time_start, time_taken, output, log_file, error_messages
		 FROM test_tasks WHERE report_id = ? ORDER BY seq`),
		reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*core.TestTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateReportStatus records a status transition. errMsg is retained on the
// report when entering the error state.
func (s *SQLStore) UpdateReportStatus(id string, status core.ReportStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(s.rebind(
		`UPDATE reports SET status = ?, error_message = ? WHERE id = ?`),
		status, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// FinishReport records the successful outcome of the render stage.
func (s *SQLStore) FinishReport(id, outputPath string, timeTaken, totalTestTime int64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(s.rebind(
		`UPDATE reports SET status = ?, output_path = ?, time_taken = ?, total_test_time_taken = ? WHERE id = ?`),
		core.ReportStatusGenerated, outputPath, timeTaken, totalTestTime, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish report: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteReportByProject removes a project's report and its tasks.
func (s *SQLStore) DeleteReportByProject(projectID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(s.rebind(`DELETE FROM reports WHERE project_ref = ?`), projectID)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *SQLStore) GetTask(id string) (*core.TestTask, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(s.rebind(
		`SELECT id, report_id, algorithm_id, test_arguments, status, progress, time_start, time_taken, output, log_file, error_messages
		 FROM test_tasks WHERE id = ?`),
		id,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask persists the task's mutable fields.
func (s *SQLStore) UpdateTask(task *core.TestTask) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	output, err := encodeJSON(task.Output)
	if err != nil {
		return fmt.Errorf("failed to encode task output: %w", err)
	}
	errMsgs, err := encodeJSON(task.ErrorMessages)
	if err != nil {
		return fmt.Errorf("failed to encode task error messages: %w", err)
	}

	result, err := s.db.Exec(s.rebind(
		`UPDATE test_tasks SET status = ?, progress = ?, time_start = ?, time_taken = ?, output = ?, log_file = ?, error_messages = ? WHERE id = ?`),
		task.Status, task.Progress, task.TimeStart.UTC(), task.TimeTaken,
		output, task.LogFile, errMsgs, task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*core.TestTask, error) {
	task := &core.TestTask{}
	var args, output, logFile, errMsgs sql.NullString
	var timeStart time.Time

	err := row.Scan(&task.ID, &task.ReportID, &task.AlgorithmID, &args,
		&task.Status, &task.Progress, &timeStart, &task.TimeTaken,
		&output, &logFile, &errMsgs)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.TimeStart = timeStart.UTC()
	task.LogFile = logFile.String
	if err := decodeJSON(args, &task.TestArguments); err != nil {
		return nil, fmt.Errorf("failed to decode task arguments: %w", err)
	}
	if err := decodeJSON(output, &task.Output); err != nil {
		return nil, fmt.Errorf("failed to decode task output: %w", err)
	}
	if err := decodeJSON(errMsgs, &task.ErrorMessages); err != nil {
		return nil, fmt.Errorf("failed to decode task error messages: %w", err)
	}
	return task, nil
}

// encodeJSON serializes v for a TEXT column. Nil maps and slices serialize
// to an empty string so the column stays NULL-ish and round-trips to nil.
func encodeJSON(v any) (string, error) {
	if isEmptyValue(v) {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]any:
		return val == nil
	case []core.Page:
		return val == nil
	case []core.ErrorMessage:
		return val == nil
	}
	return false
}

func decodeJSON(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}
