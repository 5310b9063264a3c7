package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ledgerwise/advisor/core"
)

// SQLiteStore implements TransactionStore and RecommendationStore on a
// single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date DATETIME NOT NULL,
		description TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		account TEXT NOT NULL DEFAULT '',
		embedding TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date)`,
	`CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		generated_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_user_status ON recommendations(user_id, status)`,
	`CREATE TABLE IF NOT EXISTS generation_runs (
		user_id TEXT PRIMARY KEY,
		last_generated_at DATETIME NOT NULL
	)`,
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertTransactions stores transactions as freshly imported rows with no
// embedding. The import pipeline and test fixtures both feed through here.
func (s *SQLiteStore) InsertTransactions(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range txs {
		_, err := dbTx.ExecContext(ctx,
			`INSERT INTO transactions (id, user_id, date, description, amount, category, account, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, t.Date.UTC().Format(time.RFC3339), t.Description, t.Amount, t.Category, t.Account, now,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	return dbTx.Commit()
}

// List returns transactions matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		conds = append(conds, "date < ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	if f.Text != "" {
		conds = append(conds, "description LIKE '%' || ? || '%'")
		args = append(args, f.Text)
	}

	query := `SELECT id, user_id, date, description, amount, category, account FROM transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// CountForUser returns how many transactions a user has.
func (s *SQLiteStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// LatestImportAt returns the created_at of the user's newest transaction.
func (s *SQLiteStore) LatestImportAt(ctx context.Context, userID string) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM transactions WHERE user_id = ?`, userID).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest import: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return parseTime(raw.String)
}

// DistinctUserIDs returns every user with at least one transaction.
func (s *SQLiteStore) DistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("distinct users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUnembedded returns up to limit transactions with no stored embedding.
func (s *SQLiteStore) ListUnembedded(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, date, description, amount, category, account
		 FROM transactions WHERE embedding = '' ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unembedded: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListEmbedded returns every transaction with a stored embedding.
func (s *SQLiteStore) ListEmbedded(ctx context.Context) ([]EmbeddedTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, date, description, amount, category, account, embedding
		 FROM transactions WHERE embedding != ''`)
	if err != nil {
		return nil, fmt.Errorf("list embedded: %w", err)
	}
	defer rows.Close()

	var out []EmbeddedTransaction
	for rows.Next() {
		var (
			t       core.Transaction
			rawDate string
			rawVec  string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &rawDate, &t.Description, &t.Amount, &t.Category, &t.Account, &rawVec); err != nil {
			return nil, err
		}
		if t.Date, err = parseTime(rawDate); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(rawVec), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", t.ID, err)
		}
		out = append(out, EmbeddedTransaction{Transaction: t, Embedding: vec})
	}
	return out, rows.Err()
}

// SaveEmbedding persists a transaction's vector as JSON.
func (s *SQLiteStore) SaveEmbedding(ctx context.Context, txID string, vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET embedding = ? WHERE id = ?`, string(raw), txID)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s not found", txID)
	}
	return nil
}

// ReplaceActiveBatch expires the prior active batch, inserts the new one and
// stamps the generation run, all inside a single transaction so a crash can
// never leave the old batch expired without the new one written.
func (s *SQLiteStore) ReplaceActiveBatch(ctx context.Context, userID string, recs []core.Recommendation) error {
	if len(recs) == 0 {
		return fmt.Errorf("empty recommendation batch for user %s", userID)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx,
		`UPDATE recommendations SET status = ? WHERE user_id = ? AND status = ?`,
		core.StatusExpired, userID, core.StatusActive,
	); err != nil {
		return fmt.Errorf("expire prior batch: %w", err)
	}

	var generatedAt time.Time
	for _, r := range recs {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO recommendations (id, user_id, title, message, type, priority, generated_at, expires_at, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, userID, r.Title, r.Message, string(r.Type), int(r.Priority),
			r.GeneratedAt.UTC().Format(time.RFC3339),
			r.ExpiresAt.UTC().Format(time.RFC3339),
			core.StatusActive,
		); err != nil {
			return fmt.Errorf("insert recommendation %s: %w", r.ID, err)
		}
		if r.GeneratedAt.After(generatedAt) {
			generatedAt = r.GeneratedAt
		}
	}

	if _, err := dbTx.ExecContext(ctx,
		`INSERT INTO generation_runs (user_id, last_generated_at) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET last_generated_at = excluded.last_generated_at`,
		userID, generatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("stamp generation run: %w", err)
	}

	return dbTx.Commit()
}

// ActiveForUser returns up to limit active, unexpired recommendations,
// highest priority first, then most recent first.
func (s *SQLiteStore) ActiveForUser(ctx context.Context, userID string, limit int) ([]core.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, message, type, priority, generated_at, expires_at, status
		 FROM recommendations
		 WHERE user_id = ? AND status = ? AND expires_at > ?
		 ORDER BY priority DESC, generated_at DESC
		 LIMIT ?`,
		userID, core.StatusActive, time.Now().UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("active recommendations: %w", err)
	}
	defer rows.Close()

	return scanRecommendations(rows)
}

// LastGeneratedAt returns the stamp of the user's last written batch.
func (s *SQLiteStore) LastGeneratedAt(ctx context.Context, userID string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_generated_at FROM generation_runs WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last generated: %w", err)
	}
	return parseTime(raw)
}

// ExpireOverdue flips active recommendations past their expiry to expired.
func (s *SQLiteStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ? WHERE status = ? AND expires_at <= ?`,
		core.StatusExpired, core.StatusActive, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("expire overdue: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOlderThan hard-deletes recommendations generated before cutoff.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM recommendations WHERE generated_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return res.RowsAffected()
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var (
			t       core.Transaction
			rawDate string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &rawDate, &t.Description, &t.Amount, &t.Category, &t.Account); err != nil {
			return nil, err
		}
		date, err := parseTime(rawDate)
		if err != nil {
			return nil, err
		}
		t.Date = date
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRecommendations(rows *sql.Rows) ([]core.Recommendation, error) {
	var out []core.Recommendation
	for rows.Next() {
		var (
			r                  core.Recommendation
			typ, status        string
			priority           int
			rawGen, rawExpires string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Message, &typ, &priority, &rawGen, &rawExpires, &status); err != nil {
			return nil, err
		}
		r.Type = core.RecommendationType(typ)
		r.Priority = core.Priority(priority)
		r.Status = core.RecommendationStatus(status)
		var err error
		if r.GeneratedAt, err = parseTime(rawGen); err != nil {
			return nil, err
		}
		if r.ExpiresAt, err = parseTime(rawExpires); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}
