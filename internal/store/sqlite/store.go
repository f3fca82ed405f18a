package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// indexBacklog bounds queued search index updates.
const indexBacklog = 256

// Store provides SQLite-backed persistence for the shelflife core.
type Store struct {
	db       *sql.DB
	path     string
	logger   *slog.Logger
	wasReset bool

	mu      sync.RWMutex
	emitter store.EventEmitter
	indexer store.ProductIndexer

	jobs      chan *writeJob
	indexOps  chan indexOp
	writerWG  sync.WaitGroup
	indexWG   sync.WaitGroup
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

var _ store.Store = (*Store)(nil)

// Open opens the store at path, creating it when missing.
//
// The file is health-checked and migrated. If any step fails (unreadable
// file, failed integrity check, failed migration, or a schema newer than
// this build knows) the store is destroyed and recreated empty, and
// WasReset reports true. Open fails only when the recreated store is
// unusable too.
func Open(path string, logger *slog.Logger) (*Store, error) {
	ctx := context.Background()

	db, err := openAndMigrate(ctx, path, logger)
	reset := false
	if err != nil {
		logger.Error("destructive store reset",
			slog.String("path", path),
			slog.String("error", err.Error()))

		if rmErr := removeStoreFiles(path); rmErr != nil {
			return nil, errors.CorruptStore(rmErr, "remove unreadable store")
		}
		db, err = openAndMigrate(ctx, path, logger)
		if err != nil {
			return nil, errors.CorruptStore(err, "recreate store")
		}
		reset = true
	}

	s := &Store{
		db:       db,
		path:     path,
		logger:   logger,
		wasReset: reset,
		emitter:  store.NoopEmitter{},
		indexer:  store.NoopProductIndexer{},
		jobs:     make(chan *writeJob),
		indexOps: make(chan indexOp, indexBacklog),
	}

	s.writerWG.Add(1)
	go s.writeLoop()
	s.indexWG.Add(1)
	go s.indexLoop()

	return s, nil
}

// openAndMigrate opens the database, verifies it, and applies migrations.
func openAndMigrate(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer goroutine plus concurrent readers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := verify(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// dsn applies pragmas on every pooled connection, not just the first.
func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + params.Encode()
}

func verify(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("applied migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration))
	}

	var known int64
	for _, src := range provider.ListSources() {
		known = max(known, src.Version)
	}

	var current int64
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > known {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, known)
	}
	return nil
}

// removeStoreFiles deletes the database and its journal siblings.
func removeStoreFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// WasReset reports whether Open destroyed and recreated the store.
func (s *Store) WasReset() bool {
	return s.wasReset
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SetEmitter sets the receiver of committed changes.
func (s *Store) SetEmitter(emitter store.EventEmitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = emitter
}

// SetProductIndexer sets the search indexer kept in step with commits.
func (s *Store) SetProductIndexer(indexer store.ProductIndexer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexer = indexer
}

// Close stops the writer after pending write sessions drain, flushes queued
// index updates, and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.jobs)
		s.closeMu.Unlock()

		s.writerWG.Wait()
		close(s.indexOps)
		s.indexWG.Wait()

		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// writeJob is one queued write session.
type writeJob struct {
	ctx    context.Context
	fn     func(store.Session) error
	result chan writeResult
}

type writeResult struct {
	err      error
	panicked bool
	panicVal any
}

// Write runs fn in a write transaction on the single writer goroutine.
//
// A commit failure is returned as a PersistenceFailure. A panic in fn rolls
// the transaction back and is re-raised on the caller's goroutine.
// After-commit hooks run on the writer goroutine in commit order.
func (s *Store) Write(ctx context.Context, fn func(store.Session) error) error {
	job := &writeJob{ctx: ctx, fn: fn, result: make(chan writeResult, 1)}

	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return store.ErrClosed
	}
	select {
	case s.jobs <- job:
		s.closeMu.RUnlock()
	case <-ctx.Done():
		s.closeMu.RUnlock()
		return ctx.Err()
	}

	res := <-job.result
	if res.panicked {
		panic(res.panicVal)
	}
	return res.err
}

func (s *Store) writeLoop() {
	defer s.writerWG.Done()
	for job := range s.jobs {
		job.result <- s.runWrite(job)
	}
}

func (s *Store) runWrite(job *writeJob) (res writeResult) {
	tx, err := s.db.BeginTx(job.ctx, nil)
	if err != nil {
		return writeResult{err: errors.Persistence(err, "begin write session")}
	}

	sess := newSession(tx, true)

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			res = writeResult{panicked: true, panicVal: r}
		}
	}()

	if err := job.fn(sess); err != nil {
		_ = tx.Rollback()
		return writeResult{err: err}
	}

	if err := tx.Commit(); err != nil {
		return writeResult{err: errors.Persistence(err, "commit write session")}
	}

	s.publish(sess.changes)
	sess.runHooks(s.logger)
	return writeResult{}
}

// Read runs fn in a read-only snapshot on the caller's goroutine.
func (s *Store) Read(ctx context.Context, fn func(store.Session) error) error {
	s.closeMu.RLock()
	closed := s.closed
	s.closeMu.RUnlock()
	if closed {
		return store.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess := newSession(tx, false)
	if err := fn(sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("end read session: %w", err)
	}
	sess.runHooks(s.logger)
	return nil
}

// publish forwards committed changes to the emitter and queues index updates.
func (s *Store) publish(changes []store.Change) {
	if len(changes) == 0 {
		return
	}

	s.mu.RLock()
	emitter := s.emitter
	s.mu.RUnlock()

	for _, c := range changes {
		emitter.Emit(c)

		op, ok := indexOpFor(c)
		if !ok {
			continue
		}
		select {
		case s.indexOps <- op:
		default:
			s.logger.Warn("search index backlog full, dropping update",
				slog.String("product_id", c.ProductID),
				slog.String("change", string(c.Kind)))
		}
	}
}

// formatTime formats a time.Time for storage. The fraction is fixed width
// so lexical order matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// parseTime parses a stored timestamp back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses an optional time string.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableString returns a sql.NullString from a *string.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTimeString returns a sql.NullString from a *time.Time.
func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
