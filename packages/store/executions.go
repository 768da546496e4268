package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

const executionColumns = `id, suite_id, environment_id, credential_id, status, variables,
	created_at, started_at, completed_at, duration, summary, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateExecution(ctx context.Context, exec *model.Execution) error {
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
	if exec.Status == "" {
		exec.Status = model.ExecutionPending
	}
	vars, err := encode(exec.Variables)
	if err != nil {
		return fmt.Errorf("encode execution variables: %w", err)
	}
	summary, err := encode(exec.Summary)
	if err != nil {
		return fmt.Errorf("encode execution summary: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.SuiteID, exec.EnvironmentID, nullString(exec.CredentialID), string(exec.Status), vars,
		formatTime(exec.CreatedAt), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
		exec.Duration, summary, nullString(exec.Error),
	); err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	return exec, nil
}

// ListExecutions returns the most recent executions first. A limit of zero or
// less returns all of them.
func (s *Store) ListExecutions(ctx context.Context, limit int) ([]*model.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryExecutions(ctx, query, args...)
}

// ListUnfinished returns executions still PENDING or RUNNING, oldest first.
func (s *Store) ListUnfinished(ctx context.Context) ([]*model.Execution, error) {
	return s.queryExecutions(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE status IN (?, ?) ORDER BY created_at, rowid`,
		string(model.ExecutionPending), string(model.ExecutionRunning))
}

func (s *Store) queryExecutions(ctx context.Context, query string, args ...any) ([]*model.Execution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func scanExecution(row rowScanner) (*model.Execution, error) {
	var (
		exec                             model.Execution
		status, createdAt                string
		credentialID, vars, summary, msg sql.NullString
		startedAt, completedAt           sql.NullString
	)
	if err := row.Scan(&exec.ID, &exec.SuiteID, &exec.EnvironmentID, &credentialID, &status, &vars,
		&createdAt, &startedAt, &completedAt, &exec.Duration, &summary, &msg); err != nil {
		return nil, err
	}

	exec.CredentialID = credentialID.String
	exec.Status = model.ExecutionStatus(status)
	exec.Error = msg.String

	var err error
	if exec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if exec.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if exec.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if err := decode(vars, &exec.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if err := decode(summary, &exec.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &exec, nil
}

// UpdateExecutionStatus moves an execution to status. Entering RUNNING records
// the start time.
func (s *Store) UpdateExecutionStatus(ctx context.Context, id string, status model.ExecutionStatus, at time.Time) error {
	var (
		res sql.Result
		err error
	)
	if status == model.ExecutionRunning {
		res, err = s.db.ExecContext(ctx,
			`UPDATE executions SET status = ?, started_at = ? WHERE id = ?`,
			string(status), formatTime(at), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE executions SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update execution %s: %w", id, err)
	}
	return requireRow(res, "execution", id)
}

// FinalizeExecution records the terminal status and the summary. The stored
// duration is the summed step time carried by the summary.
func (s *Store) FinalizeExecution(ctx context.Context, id string, status model.ExecutionStatus, summary *model.ExecutionSummary, completedAt time.Time) error {
	if summary == nil {
		summary = &model.ExecutionSummary{}
	}
	encoded, err := encode(summary)
	if err != nil {
		return fmt.Errorf("encode execution summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, summary = ?, duration = ?, completed_at = ? WHERE id = ?`,
		string(status), encoded, summary.Duration, formatTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("finalize execution %s: %w", id, err)
	}
	return requireRow(res, "execution", id)
}

// FailExecution marks an execution ERROR with reason.
func (s *Store) FailExecution(ctx context.Context, id, reason string, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.ExecutionError), reason, formatTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("fail execution %s: %w", id, err)
	}
	return requireRow(res, "execution", id)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}

func (s *Store) CreateStepResult(ctx context.Context, executionID string, result *model.StepExecutionResult) error {
	request, err := encode(result.Request)
	if err != nil {
		return fmt.Errorf("encode request snapshot: %w", err)
	}
	var response sql.NullString
	if result.Response != nil {
		if response, err = encode(result.Response); err != nil {
			return fmt.Errorf("encode response snapshot: %w", err)
		}
	}
	assertions := result.Assertions
	if assertions == nil {
		assertions = []*model.AssertionResult{}
	}
	encodedAssertions, err := encode(assertions)
	if err != nil {
		return fmt.Errorf("encode assertion results: %w", err)
	}
	extracted := result.ExtractedVariables
	if extracted == nil {
		extracted = map[string]any{}
	}
	encodedExtracted, err := encode(extracted)
	if err != nil {
		return fmt.Errorf("encode extracted variables: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO step_results (execution_id, step_id, step_name, status, started_at, completed_at,
			duration, request, response, assertions, extracted_variables, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID, result.StepID, result.StepName, string(result.Status),
		formatTime(result.StartedAt), formatTime(result.CompletedAt), result.Duration,
		request, response, encodedAssertions, encodedExtracted, nullString(result.Error),
	); err != nil {
		return fmt.Errorf("insert step result %q: %w", result.StepName, err)
	}
	return nil
}

// ListStepResults returns the results of an execution in the order they were
// recorded.
func (s *Store) ListStepResults(ctx context.Context, executionID string) ([]*model.StepExecutionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, step_name, status, started_at, completed_at, duration,
			request, response, assertions, extracted_variables, error
		 FROM step_results WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list step results of %s: %w", executionID, err)
	}
	defer rows.Close()

	var out []*model.StepExecutionResult
	for rows.Next() {
		var (
			r                                             model.StepExecutionResult
			status, startedAt, completedAt                string
			request, response, assertions, extracted, msg sql.NullString
		)
		if err := rows.Scan(&r.StepID, &r.StepName, &status, &startedAt, &completedAt, &r.Duration,
			&request, &response, &assertions, &extracted, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		r.Status = model.StepStatus(status)
		r.Error = msg.String
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		if err := decode(request, &r.Request); err != nil {
			return nil, fmt.Errorf("decode request snapshot: %w", err)
		}
		if err := decode(response, &r.Response); err != nil {
			return nil, fmt.Errorf("decode response snapshot: %w", err)
		}
		if r.Assertions, err = decodeAssertionResults(assertions); err != nil {
			return nil, fmt.Errorf("decode assertion results: %w", err)
		}
		if err := decode(extracted, &r.ExtractedVariables); err != nil {
			return nil, fmt.Errorf("decode extracted variables: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
