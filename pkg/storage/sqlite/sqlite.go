// Package sqlite provides an embedded SQLite implementation of
// transport.ConversationStore using the pure-Go modernc.org/sqlite driver.
// It suits single-node deployments that want history to survive restarts
// without running a database server.
//
// All access goes through one connection, so every read-modify-write is
// serialized by SQLite itself.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const themePreference = "theme"

// Store is a SQLite-backed ConversationStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements transport.ConversationStore at compile time.
var _ transport.ConversationStore = (*Store)(nil)

// New opens (or creates) the database at cfg.Path and applies migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeoutMS)
	if !cfg.inMemory() {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// An in-memory database exists per connection; a single connection
	// also serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations, err := storage.ListMigrations(migrationFiles)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.Version,
		).Scan(&exists)
		if err != nil {
			exists = false
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile("migrations/" + m.Name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.Name, err)
		}

		slog.Debug("applying sqlite migration", "file", m.Name, "version", m.Version)

		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", m.Version,
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// Append inserts turns and their response rows in one transaction.
func (s *Store) Append(ctx context.Context, turns ...*api.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := storage.ValidateAppend(turns); err != nil {
		return err
	}
	tenantID := storage.GetTenant(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range turns {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM turns WHERE id = ?)", t.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking turn: %w", err)
		}
		if exists {
			return storage.ErrConflict
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO turns (id, tenant_id, conversation_id, role, mode, text, pair_id, active_tab, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, tenantID, t.ConversationID, string(t.Role), string(t.Mode),
			t.Text, t.PairID, string(t.ActiveTab), formatTime(t.CreatedAt)); err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}

		for _, k := range t.Keys() {
			v := t.Responses[k]
			kind, msg := errorColumns(v)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO turn_responses (turn_id, style, status, text, error_kind, error_message)
				VALUES (?, ?, ?, ?, ?, ?)
			`, t.ID, string(k), string(v.Status), v.Text, kind, msg); err != nil {
				return fmt.Errorf("inserting response %s: %w", k, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// PatchResponse resolves one pending key of an assistant turn.
func (s *Store) PatchResponse(ctx context.Context, turnID string, key api.StyleKey, value api.ResponseValue) (*api.Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := requireAssistant(ctx, tx, turnID); err != nil {
		return nil, err
	}
	if apiErr := api.ValidateResponseTransition(api.ResponseStatusPending, value.Status); apiErr != nil {
		return nil, apiErr
	}

	kind, msg := errorColumns(value)
	res, err := tx.ExecContext(ctx, `
		UPDATE turn_responses
		SET status = ?, text = ?, error_kind = ?, error_message = ?, resolved_at = ?
		WHERE turn_id = ? AND style = ? AND status = 'pending'
	`, string(value.Status), value.Text, kind, msg, formatTime(time.Now()), turnID, string(key))
	if err != nil {
		return nil, fmt.Errorf("patching response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("patching response: %w", err)
	}
	if n == 0 {
		return nil, explainMissedPatch(ctx, tx, turnID, key)
	}

	turn, err := getTurn(ctx, tx, turnID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing patch: %w", err)
	}
	return turn, nil
}

// SetActiveTab updates the active tab of an assistant turn.
func (s *Store) SetActiveTab(ctx context.Context, turnID string, key api.StyleKey) (*api.Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := requireAssistant(ctx, tx, turnID); err != nil {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM turn_responses WHERE turn_id = ? AND style = ?)",
		turnID, string(key),
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking style: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownStyle, key)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE turns SET active_tab = ? WHERE id = ?", string(key), turnID); err != nil {
		return nil, fmt.Errorf("updating active tab: %w", err)
	}

	turn, err := getTurn(ctx, tx, turnID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing active tab: %w", err)
	}
	return turn, nil
}

// GetTurn retrieves a single turn by ID.
func (s *Store) GetTurn(ctx context.Context, turnID string) (*api.Turn, error) {
	return getTurn(ctx, s.db, turnID)
}

// Clear deletes every turn of a conversation along with its responses.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	tenantID := storage.GetTenant(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turn_responses WHERE turn_id IN (
			SELECT id FROM turns WHERE tenant_id = ? AND conversation_id = ?
		)
	`, tenantID, conversationID); err != nil {
		return fmt.Errorf("clearing responses: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM turns WHERE tenant_id = ? AND conversation_id = ?",
		tenantID, conversationID,
	); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	return tx.Commit()
}

// Snapshot returns a conversation's turns in insertion order.
func (s *Store) Snapshot(ctx context.Context, conversationID string) ([]*api.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, mode, text, pair_id, active_tab, created_at
		FROM turns
		WHERE tenant_id = ? AND conversation_id = ?
		ORDER BY rowid
	`, storage.GetTenant(ctx), conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	if err := loadResponses(ctx, s.db, turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// GetTheme returns the tenant's stored theme or api.DefaultTheme.
func (s *Store) GetTheme(ctx context.Context) (api.Theme, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE tenant_id = ? AND name = ?",
		storage.GetTenant(ctx), themePreference,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return api.DefaultTheme, nil
	}
	if err != nil {
		return "", fmt.Errorf("querying theme: %w", err)
	}
	return api.Theme(value), nil
}

// SetTheme upserts the tenant's theme.
func (s *Store) SetTheme(ctx context.Context, theme api.Theme) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (tenant_id, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, storage.GetTenant(ctx), themePreference, string(theme), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("storing theme: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func requireAssistant(ctx context.Context, q querier, turnID string) error {
	query, args := byTurnID(ctx, "SELECT role FROM turns WHERE id = ?", turnID)

	var role string
	err := q.QueryRowContext(ctx, query, args...).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying turn: %w", err)
	}
	if api.Role(role) != api.RoleAssistant {
		return storage.ErrNotAssistantTurn
	}
	return nil
}

func explainMissedPatch(ctx context.Context, q querier, turnID string, key api.StyleKey) error {
	var status string
	err := q.QueryRowContext(ctx,
		"SELECT status FROM turn_responses WHERE turn_id = ? AND style = ?",
		turnID, string(key),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", storage.ErrUnknownStyle, key)
	}
	if err != nil {
		return fmt.Errorf("querying response: %w", err)
	}
	return fmt.Errorf("%w: %q", storage.ErrAlreadyResolved, key)
}

func getTurn(ctx context.Context, q querier, turnID string) (*api.Turn, error) {
	query, args := byTurnID(ctx, `
		SELECT id, conversation_id, role, mode, text, pair_id, active_tab, created_at
		FROM turns
		WHERE id = ?`, turnID)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turn: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, storage.ErrNotFound
	}
	if err := loadResponses(ctx, q, turns); err != nil {
		return nil, err
	}
	return turns[0], nil
}

// byTurnID scopes a turn lookup to the context's tenant, if any.
func byTurnID(ctx context.Context, query, turnID string) (string, []any) {
	args := []any{turnID}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	return query, args
}

func loadResponses(ctx context.Context, q querier, turns []*api.Turn) error {
	byID := make(map[string]*api.Turn, len(turns))
	var ids []any
	for _, t := range turns {
		if t.Role == api.RoleAssistant {
			t.Responses = make(map[api.StyleKey]api.ResponseValue)
			byID[t.ID] = t
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx, `
		SELECT turn_id, style, status, text, error_kind, error_message
		FROM turn_responses
		WHERE turn_id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turnID, style, status, text, kind, msg string
		if err := rows.Scan(&turnID, &style, &status, &text, &kind, &msg); err != nil {
			return fmt.Errorf("scanning response: %w", err)
		}
		if t, ok := byID[turnID]; ok {
			t.Responses[api.StyleKey(style)] = responseValue(status, text, kind, msg)
		}
	}
	return rows.Err()
}

func scanTurns(rows *sql.Rows) ([]*api.Turn, error) {
	defer rows.Close()

	turns := []*api.Turn{}
	for rows.Next() {
		var t api.Turn
		var role, mode, tab, created string
		if err := rows.Scan(&t.ID, &t.ConversationID, &role, &mode, &t.Text, &t.PairID, &tab, &created); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at of %s: %w", t.ID, err)
		}
		t.Role = api.Role(role)
		t.Mode = api.Mode(mode)
		t.ActiveTab = api.StyleKey(tab)
		t.CreatedAt = ts
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func errorColumns(v api.ResponseValue) (kind, msg string) {
	if v.Error == nil {
		return "", ""
	}
	return string(v.Error.Kind), v.Error.Message
}

func responseValue(status, text, kind, msg string) api.ResponseValue {
	v := api.ResponseValue{Status: api.ResponseStatus(status), Text: text}
	if v.Status == api.ResponseStatusError {
		v.Error = &api.ResponseError{Kind: api.ErrorKind(kind), Message: msg}
	}
	return v
}
