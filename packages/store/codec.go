package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encode(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decode(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// assertionRecord mirrors model.AssertionResult without tag validation so that
// results of rejected assertions still load.
type assertionRecord struct {
	Type     string `json:"type"`
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
}

func decodeAssertionResults(ns sql.NullString) ([]*model.AssertionResult, error) {
	var records []assertionRecord
	if err := decode(ns, &records); err != nil {
		return nil, err
	}
	out := make([]*model.AssertionResult, 0, len(records))
	for _, r := range records {
		out = append(out, &model.AssertionResult{
			Type:     model.AssertionType(r.Type),
			Field:    r.Field,
			Operator: model.Operator(r.Operator),
			Expected: r.Expected,
			Actual:   r.Actual,
			Passed:   r.Passed,
			Message:  r.Message,
		})
	}
	return out, nil
}
