package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/google/uuid"
)

// CreateSuite inserts a suite and its steps. Missing IDs are generated and
// written back; SuiteID of every step is set.
func (s *Store) CreateSuite(ctx context.Context, suite *model.TestSuite) error {
	if suite.ID == "" {
		suite.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO suites (id, name, created_at) VALUES (?, ?, ?)`,
		suite.ID, suite.Name, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("insert suite: %w", err)
	}

	for _, step := range suite.Steps {
		if err := insertStep(ctx, tx, suite.ID, step); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit suite: %w", err)
	}
	return nil
}

// AddStep appends a step to an existing suite.
func (s *Store) AddStep(ctx context.Context, suiteID string, step *model.TestStep) error {
	if err := s.suiteExists(ctx, suiteID); err != nil {
		return err
	}
	return insertStep(ctx, s.db, suiteID, step)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertStep(ctx context.Context, db execer, suiteID string, step *model.TestStep) error {
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	step.SuiteID = suiteID

	headers, err := encode(step.Headers)
	if err != nil {
		return fmt.Errorf("encode headers of step %q: %w", step.Name, err)
	}
	body, err := encode(step.Body)
	if err != nil {
		return fmt.Errorf("encode body of step %q: %w", step.Name, err)
	}
	assertions, err := encode(step.Assertions)
	if err != nil {
		return fmt.Errorf("encode assertions of step %q: %w", step.Name, err)
	}
	extractors, err := encode(step.ExtractVariables)
	if err != nil {
		return fmt.Errorf("encode extractors of step %q: %w", step.Name, err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO steps (id, suite_id, name, step_order, method, endpoint, headers, body, assertions, extract_variables)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, suiteID, step.Name, step.Order, step.Method, step.Endpoint, headers, body, assertions, extractors,
	); err != nil {
		return fmt.Errorf("insert step %q: %w", step.Name, err)
	}
	return nil
}

func (s *Store) suiteExists(ctx context.Context, suiteID string) error {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM suites WHERE id = ?`, suiteID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: suite %s", ErrNotFound, suiteID)
	}
	if err != nil {
		return fmt.Errorf("load suite %s: %w", suiteID, err)
	}
	return nil
}

// LoadSuiteWithSteps returns the suite with steps ordered by step order, ties
// in insertion order.
func (s *Store) LoadSuiteWithSteps(ctx context.Context, suiteID string) (*model.TestSuite, error) {
	suite := &model.TestSuite{ID: suiteID}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM suites WHERE id = ?`, suiteID).Scan(&suite.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: suite %s", ErrNotFound, suiteID)
	}
	if err != nil {
		return nil, fmt.Errorf("load suite %s: %w", suiteID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, step_order, method, endpoint, headers, body, assertions, extract_variables
		 FROM steps WHERE suite_id = ? ORDER BY step_order, rowid`, suiteID)
	if err != nil {
		return nil, fmt.Errorf("load steps of suite %s: %w", suiteID, err)
	}
	defer rows.Close()

	for rows.Next() {
		step := &model.TestStep{SuiteID: suiteID}
		var headers, body, assertions, extractors sql.NullString
		if err := rows.Scan(&step.ID, &step.Name, &step.Order, &step.Method, &step.Endpoint,
			&headers, &body, &assertions, &extractors); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := decode(headers, &step.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of step %s: %w", step.ID, err)
		}
		if err := decode(body, &step.Body); err != nil {
			return nil, fmt.Errorf("decode body of step %s: %w", step.ID, err)
		}
		if err := decode(assertions, &step.Assertions); err != nil {
			return nil, fmt.Errorf("decode assertions of step %s: %w", step.ID, err)
		}
		if err := decode(extractors, &step.ExtractVariables); err != nil {
			return nil, fmt.Errorf("decode extractors of step %s: %w", step.ID, err)
		}
		suite.Steps = append(suite.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return suite, nil
}

func (s *Store) CreateEnvironment(ctx context.Context, env *model.Environment) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO environments (id, name, base_url) VALUES (?, ?, ?)`,
		env.ID, env.Name, env.BaseURL,
	); err != nil {
		return fmt.Errorf("insert environment: %w", err)
	}
	return nil
}

func (s *Store) LoadEnvironment(ctx context.Context, environmentID string) (*model.Environment, error) {
	env := &model.Environment{ID: environmentID}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, base_url FROM environments WHERE id = ?`, environmentID,
	).Scan(&env.Name, &env.BaseURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: environment %s", ErrNotFound, environmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load environment %s: %w", environmentID, err)
	}
	return env, nil
}

// CreateCredential stores a credential payload. Encryption at rest is left to
// the database file's storage.
func (s *Store) CreateCredential(ctx context.Context, cred *model.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	data, err := encode(cred.Data)
	if err != nil {
		return fmt.Errorf("encode credential payload: %w", err)
	}
	if !data.Valid {
		data.String, data.Valid = "{}", true
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, name, type, data) VALUES (?, ?, ?, ?)`,
		cred.ID, cred.Name, string(cred.Type), data,
	); err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *Store) ResolveCredential(ctx context.Context, credentialID string) (*model.Credential, error) {
	cred := &model.Credential{ID: credentialID}
	var credType string
	var data sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT name, type, data FROM credentials WHERE id = ?`, credentialID,
	).Scan(&cred.Name, &credType, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: credential %s", ErrNotFound, credentialID)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential %s: %w", credentialID, err)
	}
	cred.Type = model.CredentialType(credType)
	if err := decode(data, &cred.Data); err != nil {
		return nil, fmt.Errorf("decode credential %s: %w", credentialID, err)
	}
	return cred, nil
}
