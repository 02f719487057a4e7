// Package store provides the SQLite-backed implementation of
// domain.Store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"deskbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		platform_id TEXT NOT NULL UNIQUE,
		name        TEXT,
		blocked     INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id   INTEGER NOT NULL REFERENCES clients(id),
		direction   TEXT NOT NULL,
		body        TEXT,
		operator_id INTEGER,
		delivered   INTEGER NOT NULL DEFAULT 1,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_client ON messages(client_id, created_at);

	CREATE TABLE IF NOT EXISTS dialogs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id   TEXT NOT NULL UNIQUE,
		client_id   INTEGER NOT NULL REFERENCES clients(id),
		status      TEXT NOT NULL,
		resolution  TEXT,
		operator_id INTEGER,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_dialogs_client ON dialogs(client_id, status);
	CREATE INDEX IF NOT EXISTS idx_dialogs_status ON dialogs(status, updated_at);

	CREATE TABLE IF NOT EXISTS qa_entries (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		answer   TEXT NOT NULL,
		warning  TEXT,
		active   INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS operators (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		login TEXT NOT NULL UNIQUE,
		name  TEXT,
		role  TEXT NOT NULL DEFAULT 'operator'
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Clients ---

func (s *SQLiteStore) CreateClient(ctx context.Context, c domain.Client) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (platform_id, name, blocked, created_at) VALUES (?, ?, ?, ?)`,
		c.PlatformID, c.Name, c.Blocked, c.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	return s.scanClient(s.db.QueryRowContext(ctx,
		`SELECT id, platform_id, name, blocked, created_at FROM clients WHERE id = ?`, id))
}

func (s *SQLiteStore) GetClientByPlatformID(ctx context.Context, platformID string) (*domain.Client, error) {
	return s.scanClient(s.db.QueryRowContext(ctx,
		`SELECT id, platform_id, name, blocked, created_at FROM clients WHERE platform_id = ?`, platformID))
}

func (s *SQLiteStore) scanClient(row *sql.Row) (*domain.Client, error) {
	var c domain.Client
	var name sql.NullString
	err := row.Scan(&c.ID, &c.PlatformID, &name, &c.Blocked, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Name = name.String
	return &c, nil
}

func (s *SQLiteStore) UpdateClientName(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE clients SET name = ? WHERE id = ?`, name, id)
	return err
}

func (s *SQLiteStore) SetClientBlocked(ctx context.Context, id int64, blocked bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE clients SET blocked = ? WHERE id = ?`, blocked, id)
	return err
}

func (s *SQLiteStore) ListClients(ctx context.Context, limit int) ([]domain.Client, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform_id, name, blocked, created_at
		 FROM clients ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		var c domain.Client
		var name sql.NullString
		if err := rows.Scan(&c.ID, &c.PlatformID, &name, &c.Blocked, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Name = name.String
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// --- Messages ---

func (s *SQLiteStore) AppendMessage(ctx context.Context, m domain.Message) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	var operatorID sql.NullInt64
	if m.OperatorID != nil {
		operatorID = sql.NullInt64{Int64: *m.OperatorID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (client_id, direction, body, operator_id, delivered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ClientID, string(m.Direction), m.Body, operatorID, m.Delivered, m.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) MarkUndelivered(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET delivered = 0 WHERE id = ?`, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, clientID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, direction, body, operator_id, delivered, created_at
		 FROM messages WHERE client_id = ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`, clientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var body sql.NullString
		var operatorID sql.NullInt64
		var direction string
		if err := rows.Scan(&m.ID, &m.ClientID, &direction, &body, &operatorID, &m.Delivered, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = domain.Direction(direction)
		m.Body = body.String
		if operatorID.Valid {
			id := operatorID.Int64
			m.OperatorID = &id
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Dialogs ---

func (s *SQLiteStore) CreateDialog(ctx context.Context, d domain.Dialog) (int64, error) {
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	var operatorID sql.NullInt64
	if d.OperatorID != nil {
		operatorID = sql.NullInt64{Int64: *d.OperatorID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dialogs (public_id, client_id, status, resolution, operator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.PublicID, d.ClientID, string(d.Status), d.Resolution, operatorID, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetDialog(ctx context.Context, id int64) (*domain.Dialog, error) {
	return s.scanDialog(s.db.QueryRowContext(ctx,
		`SELECT id, public_id, client_id, status, resolution, operator_id, created_at, updated_at
		 FROM dialogs WHERE id = ?`, id))
}

func (s *SQLiteStore) GetOpenDialog(ctx context.Context, clientID int64) (*domain.Dialog, error) {
	return s.scanDialog(s.db.QueryRowContext(ctx,
		`SELECT id, public_id, client_id, status, resolution, operator_id, created_at, updated_at
		 FROM dialogs WHERE client_id = ? AND status != 'closed'
		 ORDER BY created_at DESC LIMIT 1`, clientID))
}

func (s *SQLiteStore) scanDialog(row *sql.Row) (*domain.Dialog, error) {
	var d domain.Dialog
	var status string
	var resolution sql.NullString
	var operatorID sql.NullInt64
	err := row.Scan(&d.ID, &d.PublicID, &d.ClientID, &status, &resolution, &operatorID, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Status = domain.DialogStatus(status)
	d.Resolution = resolution.String
	if operatorID.Valid {
		id := operatorID.Int64
		d.OperatorID = &id
	}
	return &d, nil
}

func (s *SQLiteStore) UpdateDialog(ctx context.Context, d domain.Dialog) error {
	var operatorID sql.NullInt64
	if d.OperatorID != nil {
		operatorID = sql.NullInt64{Int64: *d.OperatorID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE dialogs SET status = ?, resolution = ?, operator_id = ?, updated_at = ? WHERE id = ?`,
		string(d.Status), d.Resolution, operatorID, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListDialogs(ctx context.Context, status domain.DialogStatus, operatorID int64, limit int) ([]domain.Dialog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, public_id, client_id, status, resolution, operator_id, created_at, updated_at FROM dialogs`
	var args []any
	var where []string
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	if operatorID != 0 {
		where = append(where, "operator_id = ?")
		args = append(args, operatorID)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dialogs []domain.Dialog
	for rows.Next() {
		var d domain.Dialog
		var st string
		var resolution sql.NullString
		var opID sql.NullInt64
		if err := rows.Scan(&d.ID, &d.PublicID, &d.ClientID, &st, &resolution, &opID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Status = domain.DialogStatus(st)
		d.Resolution = resolution.String
		if opID.Valid {
			id := opID.Int64
			d.OperatorID = &id
		}
		dialogs = append(dialogs, d)
	}
	return dialogs, rows.Err()
}

// --- Static Q/A ---

func (s *SQLiteStore) ListActiveQA(ctx context.Context) ([]domain.QAEntry, error) {
	return s.listQA(ctx, `SELECT id, question, answer, warning, active FROM qa_entries WHERE active = 1 ORDER BY id ASC`)
}

func (s *SQLiteStore) ListQA(ctx context.Context) ([]domain.QAEntry, error) {
	return s.listQA(ctx, `SELECT id, question, answer, warning, active FROM qa_entries ORDER BY id ASC`)
}

func (s *SQLiteStore) listQA(ctx context.Context, query string) ([]domain.QAEntry, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.QAEntry
	for rows.Next() {
		var e domain.QAEntry
		var warning sql.NullString
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &warning, &e.Active); err != nil {
			return nil, err
		}
		e.Warning = warning.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) CreateQA(ctx context.Context, e domain.QAEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO qa_entries (question, answer, warning, active) VALUES (?, ?, ?, ?)`,
		e.Question, e.Answer, e.Warning, e.Active,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateQA(ctx context.Context, e domain.QAEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_entries SET question = ?, answer = ?, warning = ?, active = ? WHERE id = ?`,
		e.Question, e.Answer, e.Warning, e.Active, e.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteQA(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qa_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- Operators ---

func (s *SQLiteStore) GetOperator(ctx context.Context, id int64) (*domain.Operator, error) {
	return s.scanOperator(s.db.QueryRowContext(ctx,
		`SELECT id, login, name, role FROM operators WHERE id = ?`, id))
}

func (s *SQLiteStore) GetOperatorByLogin(ctx context.Context, login string) (*domain.Operator, error) {
	return s.scanOperator(s.db.QueryRowContext(ctx,
		`SELECT id, login, name, role FROM operators WHERE login = ?`, login))
}

func (s *SQLiteStore) scanOperator(row *sql.Row) (*domain.Operator, error) {
	var op domain.Operator
	var name sql.NullString
	var role string
	err := row.Scan(&op.ID, &op.Login, &name, &role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	op.Name = name.String
	op.Role = domain.Role(role)
	return &op, nil
}

func (s *SQLiteStore) CreateOperator(ctx context.Context, op domain.Operator) (int64, error) {
	if op.Role == "" {
		op.Role = domain.RoleOperator
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (login, name, role) VALUES (?, ?, ?)`,
		op.Login, op.Name, string(op.Role),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
