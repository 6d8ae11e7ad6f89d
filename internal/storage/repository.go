// Package storage persists users and money records in SQLite.
//
// Expense and income records live in separate tables with identical shape;
// amounts are stored as positive integer cents. Every record query is scoped
// to its owning user, and a miss on (id, user) is reported as ErrNotFound
// regardless of whether the row exists for another user.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record or user does not exist for the
// requesting owner.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email that is taken.
var ErrDuplicateEmail = errors.New("user already exists with this email")

const timeLayout = time.RFC3339

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// The driver serializes writes; a single pooled connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping reports whether the database is reachable, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The driver exposes no typed error for this.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// tableFor maps a record kind to its table. Kinds are validated at the API
// boundary; an unknown kind here is a programming error.
func tableFor(kind core.Kind) (string, error) {
	switch kind {
	case core.KindExpense:
		return "expenses", nil
	case core.KindIncome:
		return "incomes", nil
	default:
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
}

// CreateUser inserts a new account and returns it with its assigned ID.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER(?)`, u.Email).Scan(&count)
	if err != nil {
		return core.User{}, fmt.Errorf("check existing user: %w", err)
	}
	if count > 0 {
		return core.User{}, ErrDuplicateEmail
	}

	u.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, full_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.CreatedAt.Format(timeLayout))
	if err != nil {
		// Two concurrent registrations can both pass the pre-check; the
		// loser hits the UNIQUE constraint on email.
		if isUniqueViolation(err) {
			return core.User{}, ErrDuplicateEmail
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id

	slog.InfoContext(ctx, "User created", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// GetUserByEmail looks up an account by email (case-insensitive).
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, full_name, created_at
		 FROM users WHERE LOWER(email) = LOWER(?)`, email)
	return scanUser(row)
}

// GetUserByID looks up an account by its ID.
func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, full_name, created_at
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return u, nil
}

// CreateRecord inserts a money record of the given kind and returns it with
// its assigned ID and timestamps. New records start with mirror status
// pending.
func (r *SQLiteRepository) CreateRecord(ctx context.Context, kind core.Kind, rec core.MoneyRecord) (core.MoneyRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return core.MoneyRecord{}, err
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id, title, amount_cents, category, occurred_on, description, created_at, updated_at, sync_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
		rec.UserID, rec.Title, rec.Amount.Cents, rec.Category, rec.OccurredOn.String(),
		rec.Description, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("create %s record: %w", kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id

	slog.InfoContext(ctx, "Record created",
		"kind", kind,
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"amount_cents", rec.Amount.Cents,
		"category", rec.Category)

	return rec, nil
}

// GetRecord fetches a single record by (id, owner). A row owned by a
// different user yields ErrNotFound.
func (r *SQLiteRepository) GetRecord(ctx context.Context, kind core.Kind, id, userID int64) (core.MoneyRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return core.MoneyRecord{}, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, amount_cents, category, occurred_on, description, created_at, updated_at
		 FROM `+table+` WHERE id = ? AND user_id = ?`, id, userID)
	return scanRecord(row)
}

// GetRecordAnyOwner fetches a record by ID without owner scoping. Reserved
// for the mirror worker, which operates on IDs from queue messages.
func (r *SQLiteRepository) GetRecordAnyOwner(ctx context.Context, kind core.Kind, id int64) (core.MoneyRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return core.MoneyRecord{}, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, amount_cents, category, occurred_on, description, created_at, updated_at
		 FROM `+table+` WHERE id = ?`, id)
	return scanRecord(row)
}

// ListRecords returns all records of one kind for a user, newest first
// (occurred_on desc, id desc).
func (r *SQLiteRepository) ListRecords(ctx context.Context, kind core.Kind, userID int64) ([]core.MoneyRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, amount_cents, category, occurred_on, description, created_at, updated_at
		 FROM `+table+` WHERE user_id = ?
		 ORDER BY occurred_on DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecordsSince returns a user's records of one kind dated on or after
// cutoff, newest first.
func (r *SQLiteRepository) ListRecordsSince(ctx context.Context, kind core.Kind, userID int64, cutoff core.Date) ([]core.MoneyRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, amount_cents, category, occurred_on, description, created_at, updated_at
		 FROM `+table+` WHERE user_id = ? AND occurred_on >= ?
		 ORDER BY occurred_on DESC, id DESC`, userID, cutoff.String())
	if err != nil {
		return nil, fmt.Errorf("list %s records since %s: %w", kind, cutoff, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecordSets loads a user's full expense and income sets concurrently.
// This is the single read path behind every derived view.
func (r *SQLiteRepository) ListRecordSets(ctx context.Context, userID int64) (expenses, incomes []core.MoneyRecord, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = r.ListRecords(gctx, core.KindExpense, userID)
		return err
	})
	g.Go(func() error {
		var err error
		incomes, err = r.ListRecords(gctx, core.KindIncome, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return expenses, incomes, nil
}

// UpdateRecord rewrites every mutable field of an existing record owned by
// rec.UserID and resets its mirror status to pending. Field-level "keep the
// old value" defaults are resolved by the caller before this point.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, kind core.Kind, rec core.MoneyRecord) (core.MoneyRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return core.MoneyRecord{}, err
	}

	rec.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+`
		 SET title = ?, amount_cents = ?, category = ?, occurred_on = ?, description = ?, updated_at = ?, sync_status = 'pending'
		 WHERE id = ? AND user_id = ?`,
		rec.Title, rec.Amount.Cents, rec.Category, rec.OccurredOn.String(), rec.Description,
		rec.UpdatedAt.Format(timeLayout), rec.ID, rec.UserID)
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("update %s record: %w", kind, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.MoneyRecord{}, ErrNotFound
	}

	slog.InfoContext(ctx, "Record updated", "kind", kind, "record_id", rec.ID, "user_id", rec.UserID)
	return rec, nil
}

// DeleteRecord removes a record owned by userID. Deleting a record that does
// not exist for that owner yields ErrNotFound.
func (r *SQLiteRepository) DeleteRecord(ctx context.Context, kind core.Kind, id, userID int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete %s record: %w", kind, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Record deleted", "kind", kind, "record_id", id, "user_id", userID)
	return nil
}

// PendingRecord identifies a record still waiting to be mirrored.
type PendingRecord struct {
	Kind core.Kind
	ID   int64
}

// ListPendingMirror returns up to limit records whose mirror status is still
// pending, across both tables. Used by the worker's periodic re-drive.
func (r *SQLiteRepository) ListPendingMirror(ctx context.Context, limit int) ([]PendingRecord, error) {
	var out []PendingRecord
	for _, kind := range []core.Kind{core.KindExpense, core.KindIncome} {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}
		rows, err := r.db.QueryContext(ctx,
			`SELECT id FROM `+table+` WHERE sync_status = 'pending' ORDER BY id LIMIT ?`, limit)
		if err != nil {
			return nil, fmt.Errorf("list pending %s records: %w", kind, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan pending id: %w", err)
			}
			out = append(out, PendingRecord{Kind: kind, ID: id})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate pending %s records: %w", kind, err)
		}
		rows.Close()
	}
	return out, nil
}

// MarkMirrored flags a record as successfully mirrored.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, kind core.Kind, id int64) error {
	return r.setMirrorStatus(ctx, kind, id, "synced")
}

// MarkMirrorError flags a record as having failed to mirror.
func (r *SQLiteRepository) MarkMirrorError(ctx context.Context, kind core.Kind, id int64) error {
	return r.setMirrorStatus(ctx, kind, id, "error")
}

func (r *SQLiteRepository) setMirrorStatus(ctx context.Context, kind core.Kind, id int64, status string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET sync_status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("mark %s record %s: %w", kind, status, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.MoneyRecord, error) {
	var rec core.MoneyRecord
	var occurredOn, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Amount.Cents, &rec.Category,
		&occurredOn, &rec.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MoneyRecord{}, ErrNotFound
	}
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.OccurredOn, err = core.ParseDate(occurredOn)
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("parse occurred_on %q: %w", occurredOn, err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]core.MoneyRecord, error) {
	var out []core.MoneyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
