package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ProblemCode is the durably persisted code for one (problem, user,
// language) triple, written by the autosave flush path.
type ProblemCode struct {
	ID        int
	ProblemID int
	UserID    int
	Language  string
	Code      string
}

// CodeSink persists autosaved code. Upsert is the only mutation the core
// performs on this table.
type CodeSink interface {
	Upsert(ctx context.Context, problemID, userID int, language, code string) (*ProblemCode, error)
	Find(ctx context.Context, problemID, userID int, language string) (*ProblemCode, error)
}

// SQLCodeSink implements CodeSink on micro_problem_code, unique on
// (problem_id, user_id, language).
type SQLCodeSink struct {
	db *sql.DB
}

func NewCodeSink(db *sql.DB) *SQLCodeSink {
	return &SQLCodeSink{db: db}
}

// Upsert inserts or replaces the stored code for the triple inside a short
// transaction, returning the stored row. Idempotent: re-running with the
// same arguments is harmless.
func (s *SQLCodeSink) Upsert(ctx context.Context, problemID, userID int, language, code string) (*ProblemCode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO micro_problem_code (problem_id, user_id, language, code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (problem_id, user_id, language)
		DO UPDATE SET code = EXCLUDED.code
		RETURNING id, problem_id, user_id, language, code`,
		problemID, userID, language, code)

	var pc ProblemCode
	if err := row.Scan(&pc.ID, &pc.ProblemID, &pc.UserID, &pc.Language, &pc.Code); err != nil {
		return nil, fmt.Errorf("upsert problem code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert tx: %w", err)
	}
	return &pc, nil
}

// Find returns the stored code for the triple, or nil when absent.
func (s *SQLCodeSink) Find(ctx context.Context, problemID, userID int, language string) (*ProblemCode, error) {
	var pc ProblemCode
	err := s.db.QueryRowContext(ctx, `
		SELECT id, problem_id, user_id, language, code
		FROM micro_problem_code
		WHERE problem_id = $1 AND user_id = $2 AND language = $3`,
		problemID, userID, language).
		Scan(&pc.ID, &pc.ProblemID, &pc.UserID, &pc.Language, &pc.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query problem code: %w", err)
	}
	return &pc, nil
}
