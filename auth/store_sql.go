package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// dbHandle abstracts *sql.DB for testability and context-aware calls.
type dbHandle interface {
	Close() error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SQLStore persists users and sessions in SQLite or PostgreSQL. It implements
// UserStore, SessionStore, SessionBinder and Pruner.
type SQLStore struct {
	db     dbHandle
	raw    *sql.DB
	driver string
}

// OpenSQLStore opens the database, applies pragmas for SQLite and runs the
// embedded migrations.
func OpenSQLStore(ctx context.Context, driver, dsn string, maxOpen, maxIdle int) (*SQLStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA synchronous=NORMAL;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragmas: %w", err)
		}
	}
	if err := migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db, raw: db, driver: driver}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection pool, e.g. for health checks.
func (s *SQLStore) DB() *sql.DB { return s.raw }

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
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

func (s *SQLStore) AddUser(ctx context.Context, rec UserRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer rollbackIfNeeded(tx)

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM users WHERE email = ?`), rec.Email).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check email: %w", err)
	}
	if exists == 1 {
		return ErrUserExists
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, email, hashed_password, session_id, reset_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.Email, rec.HashedPassword, nullString(rec.SessionID), nullString(rec.ResetToken), rec.CreatedAt.UnixMilli()); err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var userColumns = map[LookupKey]string{
	ByID:         "id",
	ByEmail:      "email",
	BySessionID:  "session_id",
	ByResetToken: "reset_token",
}

func (s *SQLStore) FindUser(ctx context.Context, key LookupKey, value string) (UserRecord, bool, error) {
	col, ok := userColumns[key]
	if !ok || value == "" {
		return UserRecord{}, false, nil
	}
	var (
		rec       UserRecord
		sessionID sql.NullString
		reset     sql.NullString
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, email, hashed_password, session_id, reset_token, created_at
		FROM users
		WHERE `+col+` = ?
	`), value).Scan(&rec.ID, &rec.Email, &rec.HashedPassword, &sessionID, &reset, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, fmt.Errorf("query user by %s: %w", key, err)
	}
	rec.SessionID = sessionID.String
	rec.ResetToken = reset.String
	rec.CreatedAt = time.UnixMilli(createdAt)
	return rec, true, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	return s.updateUser(ctx, s.db, id, upd)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) updateUser(ctx context.Context, db execer, id string, upd UserUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.HashedPassword != nil {
		sets = append(sets, "hashed_password = ?")
		args = append(args, *upd.HashedPassword)
	}
	if upd.SessionID != nil {
		sets = append(sets, "session_id = ?")
		args = append(args, nullString(*upd.SessionID))
	}
	if upd.ResetToken != nil {
		sets = append(sets, "reset_token = ?")
		args = append(args, nullString(*upd.ResetToken))
	}
	if len(sets) == 0 {
		return nil
	}
	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if upd.MatchResetToken != nil {
		query += ` AND reset_token = ?`
		args = append(args, *upd.MatchResetToken)
	}

	res, err := db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, rec SessionRecord) error {
	return s.insertSession(ctx, s.db, rec)
}

func (s *SQLStore) insertSession(ctx context.Context, db execer, rec SessionRecord) error {
	if _, err := db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_sessions (session_id, user_id, created_at)
		VALUES (?, ?, ?)
	`), rec.SessionID, rec.UserID, rec.CreatedAt.UnixMilli()); err != nil {
		if isUniqueViolation(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, sessionID string) (SessionRecord, bool, error) {
	var (
		rec       SessionRecord
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT session_id, user_id, created_at
		FROM user_sessions
		WHERE session_id = ?
	`), sessionID).Scan(&rec.SessionID, &rec.UserID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("query session: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	return rec, true, nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM user_sessions WHERE session_id = ?`), sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// BindSession inserts rec and sets the owner's session_id in one transaction.
// Nothing is written if either step fails.
func (s *SQLStore) BindSession(ctx context.Context, rec SessionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer rollbackIfNeeded(tx)

	if err := s.insertSession(ctx, tx, rec); err != nil {
		return err
	}
	sid := rec.SessionID
	if err := s.updateUser(ctx, tx, rec.UserID, UserUpdate{SessionID: &sid}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM user_sessions WHERE created_at <= ?`), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// rollbackIfNeeded rolls back tx if it's still active.
func rollbackIfNeeded(tx *sql.Tx) {
	_ = tx.Rollback()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
