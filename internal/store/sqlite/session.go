package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"github.com/shelflifeapp/shelflife/internal/store"
)

// querier is satisfied by *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session implements store.Session over one transaction.
type session struct {
	q        querier
	writable bool
	changes  []store.Change
	hooks    []func()
}

var _ store.Session = (*session)(nil)

func newSession(q querier, writable bool) *session {
	return &session{q: q, writable: writable}
}

func (s *session) AfterCommit(fn func()) {
	s.hooks = append(s.hooks, fn)
}

// mutable guards every mutating method.
func (s *session) mutable() error {
	if !s.writable {
		return store.ErrReadOnlySession
	}
	return nil
}

func (s *session) record(c store.Change) {
	s.changes = append(s.changes, c)
}

func (s *session) runHooks(logger *slog.Logger) {
	for _, fn := range s.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("after-commit hook panicked", slog.Any("panic", r))
				}
			}()
			fn()
		}()
	}
}

// queryRow runs a squirrel builder through the session's transaction.
func (s *session) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.q.QueryRowContext(ctx, query, args...), nil
}

func (s *session) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.q.QueryContext(ctx, query, args...)
}
