// Package postgres provides a PostgreSQL implementation of
// transport.ConversationStore. It uses pgx/v5 for connection pooling.
// Each response key is its own row, so concurrent patches of sibling keys
// never touch the same tuple.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

const themePreference = "theme"

// Store is a PostgreSQL-backed ConversationStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements transport.ConversationStore at compile time.
var _ transport.ConversationStore = (*Store)(nil)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, t := range turns {
		_, err := tx.Exec(ctx, `
			INSERT INTO turns (id, tenant_id, conversation_id, role, mode, text, pair_id, active_tab, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.ID, tenantID, t.ConversationID, string(t.Role), string(t.Mode),
			t.Text, t.PairID, string(t.ActiveTab), t.CreatedAt)
		if err != nil {
			if isDuplicateKey(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("inserting turn: %w", err)
		}

		for _, k := range t.Keys() {
			v := t.Responses[k]
			kind, msg := errorColumns(v)
			if _, err := tx.Exec(ctx, `
				INSERT INTO turn_responses (turn_id, style, status, text, error_kind, error_message)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.ID, string(k), string(v.Status), v.Text, kind, msg); err != nil {
				return fmt.Errorf("inserting response %s: %w", k, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// PatchResponse resolves one pending key. The conditional UPDATE on the
// key's own row makes the write atomic without locking sibling keys.
func (s *Store) PatchResponse(ctx context.Context, turnID string, key api.StyleKey, value api.ResponseValue) (*api.Turn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.requireAssistant(ctx, tx, turnID); err != nil {
		return nil, err
	}
	if apiErr := api.ValidateResponseTransition(api.ResponseStatusPending, value.Status); apiErr != nil {
		return nil, apiErr
	}

	kind, msg := errorColumns(value)
	tag, err := tx.Exec(ctx, `
		UPDATE turn_responses
		SET status = $1, text = $2, error_kind = $3, error_message = $4, resolved_at = $5
		WHERE turn_id = $6 AND style = $7 AND status = 'pending'
	`, string(value.Status), value.Text, kind, msg, time.Now(), turnID, string(key))
	if err != nil {
		return nil, fmt.Errorf("patching response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.explainMissedPatch(ctx, tx, turnID, key)
	}

	turn, err := s.getTurn(ctx, tx, turnID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing patch: %w", err)
	}
	return turn, nil
}

// SetActiveTab updates the active tab of an assistant turn.
func (s *Store) SetActiveTab(ctx context.Context, turnID string, key api.StyleKey) (*api.Turn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.requireAssistant(ctx, tx, turnID); err != nil {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM turn_responses WHERE turn_id = $1 AND style = $2)",
		turnID, string(key),
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking style: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownStyle, key)
	}

	if _, err := tx.Exec(ctx, "UPDATE turns SET active_tab = $1 WHERE id = $2", string(key), turnID); err != nil {
		return nil, fmt.Errorf("updating active tab: %w", err)
	}

	turn, err := s.getTurn(ctx, tx, turnID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing active tab: %w", err)
	}
	return turn, nil
}

// GetTurn retrieves a single turn by ID.
func (s *Store) GetTurn(ctx context.Context, turnID string) (*api.Turn, error) {
	return s.getTurn(ctx, s.pool, turnID)
}

// Clear deletes every turn of a conversation. Response rows cascade.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM turns WHERE tenant_id = $1 AND conversation_id = $2",
		storage.GetTenant(ctx), conversationID,
	)
	if err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	return nil
}

// Snapshot returns a conversation's turns in insertion order.
func (s *Store) Snapshot(ctx context.Context, conversationID string) ([]*api.Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, mode, text, pair_id, active_tab, created_at
		FROM turns
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY seq
	`, storage.GetTenant(ctx), conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadResponses(ctx, s.pool, turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// GetTheme returns the tenant's stored theme or api.DefaultTheme.
func (s *Store) GetTheme(ctx context.Context) (api.Theme, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM preferences WHERE tenant_id = $1 AND name = $2",
		storage.GetTenant(ctx), themePreference,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.DefaultTheme, nil
	}
	if err != nil {
		return "", fmt.Errorf("querying theme: %w", err)
	}
	return api.Theme(value), nil
}

// SetTheme upserts the tenant's theme.
func (s *Store) SetTheme(ctx context.Context, theme api.Theme) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO preferences (tenant_id, name, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, storage.GetTenant(ctx), themePreference, string(theme), time.Now())
	if err != nil {
		return fmt.Errorf("storing theme: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// requireAssistant checks that turnID exists for the tenant and is an
// assistant turn.
func (s *Store) requireAssistant(ctx context.Context, q querier, turnID string) error {
	query := "SELECT role FROM turns WHERE id = $1"
	args := []any{turnID}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	var role string
	err := q.QueryRow(ctx, query, args...).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
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

// explainMissedPatch tells an unknown key apart from an already resolved one.
func (s *Store) explainMissedPatch(ctx context.Context, q querier, turnID string, key api.StyleKey) error {
	var status string
	err := q.QueryRow(ctx,
		"SELECT status FROM turn_responses WHERE turn_id = $1 AND style = $2",
		turnID, string(key),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", storage.ErrUnknownStyle, key)
	}
	if err != nil {
		return fmt.Errorf("querying response: %w", err)
	}
	return fmt.Errorf("%w: %q", storage.ErrAlreadyResolved, key)
}

func (s *Store) getTurn(ctx context.Context, q querier, turnID string) (*api.Turn, error) {
	query := `
		SELECT id, conversation_id, role, mode, text, pair_id, active_tab, created_at
		FROM turns
		WHERE id = $1
	`
	args := []any{turnID}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	rows, err := q.Query(ctx, query, args...)
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
	if err := s.loadResponses(ctx, q, turns); err != nil {
		return nil, err
	}
	return turns[0], nil
}

// loadResponses fills the Responses map of every assistant turn.
func (s *Store) loadResponses(ctx context.Context, q querier, turns []*api.Turn) error {
	byID := make(map[string]*api.Turn, len(turns))
	var ids []string
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

	rows, err := q.Query(ctx, `
		SELECT turn_id, style, status, text, error_kind, error_message
		FROM turn_responses
		WHERE turn_id = ANY($1)
	`, ids)
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

func scanTurns(rows pgx.Rows) ([]*api.Turn, error) {
	defer rows.Close()

	turns := []*api.Turn{}
	for rows.Next() {
		var t api.Turn
		var role, mode, tab string
		if err := rows.Scan(&t.ID, &t.ConversationID, &role, &mode, &t.Text, &t.PairID, &tab, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = api.Role(role)
		t.Mode = api.Mode(mode)
		t.ActiveTab = api.StyleKey(tab)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
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

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
