// Package postgres provides a PostgreSQL implementation of
// transport.SessionStore. It uses pgx/v5 for connection pooling; message
// history lives in its own table keyed by (session_id, seq).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/storage"
	"github.com/rhuss/chatrelay/pkg/transport"
)

// Store is a PostgreSQL-backed SessionStore.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ transport.SessionStore = (*Store)(nil)

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

	s := &Store{pool: pool, now: time.Now}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateSession inserts the session row and any initial messages.
func (s *Store) CreateSession(ctx context.Context, sess *api.Session) error {
	createdAt := sess.CreatedAt
	if createdAt == 0 {
		createdAt = s.now().Unix()
	}
	updatedAt := sess.UpdatedAt
	if updatedAt == 0 {
		updatedAt = createdAt
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, owner, title, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			sess.ID, storage.GetOwner(ctx), sess.Title, createdAt, updatedAt,
		); err != nil {
			return err
		}
		return insertMessages(ctx, tx, sess.ID, 0, sess.Messages)
	})
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession loads a session with its full ordered message history.
func (s *Store) GetSession(ctx context.Context, id string) (*api.Session, error) {
	owner := storage.GetOwner(ctx)

	sess := &api.Session{Object: "session"}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions
		 WHERE id = $1 AND ($2::text = '' OR owner = $2)`,
		id, owner,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM messages WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	sess.Messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.Message, error) {
		var role, content string
		err := row.Scan(&role, &content)
		return api.Message{Role: api.Role(role), Content: content}, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}
	return sess, nil
}

// AppendMessages adds msgs after the current last message. The session row
// is locked for the duration of the transaction so concurrent appends
// cannot interleave sequence numbers.
func (s *Store) AppendMessages(ctx context.Context, id string, msgs []api.Message) error {
	owner := storage.GetOwner(ctx)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx,
			`SELECT id FROM sessions WHERE id = $1 AND ($2::text = '' OR owner = $2) FOR UPDATE`,
			id, owner,
		).Scan(&locked)
		if err != nil {
			return err
		}

		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE session_id = $1`, id,
		).Scan(&next); err != nil {
			return err
		}

		if err := insertMessages(ctx, tx, id, next, msgs); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, id, s.now().Unix())
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("appending messages: %w", err)
	}
	return nil
}

// ListSessions returns a keyset-paginated page ordered by (updated_at, id).
func (s *Store) ListSessions(ctx context.Context, opts transport.ListOptions) (*api.SessionList, error) {
	opts = opts.Normalize()
	owner := storage.GetOwner(ctx)

	result := &api.SessionList{Object: "list", Data: []*api.Session{}}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, fmt.Sprintf("(%[1]s::text = '' OR owner = %[1]s)", arg(owner)))

	dir, cmp := "DESC", "<"
	if opts.Order == "asc" {
		dir, cmp = "ASC", ">"
	}

	cursor, forward := opts.After, true
	if cursor == "" && opts.Before != "" {
		cursor, forward = opts.Before, false
	}
	if cursor != "" {
		var cursorUpdated int64
		err := s.pool.QueryRow(ctx,
			`SELECT updated_at FROM sessions WHERE id = $1 AND ($2::text = '' OR owner = $2)`,
			cursor, owner,
		).Scan(&cursorUpdated)
		if errors.Is(err, pgx.ErrNoRows) {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}
		op := cmp
		if !forward {
			op = map[string]string{"<": ">", ">": "<"}[cmp]
		}
		where = append(where, fmt.Sprintf("(updated_at, id) %s (%s, %s)", op, arg(cursorUpdated), arg(cursor)))
	}

	query := fmt.Sprintf(
		`SELECT id, title, created_at, updated_at FROM sessions WHERE %s
		 ORDER BY updated_at %s, id %s LIMIT %s`,
		strings.Join(where, " AND "), dir, dir, arg(opts.Limit+1),
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*api.Session, error) {
		sess := &api.Session{Object: "session"}
		err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
		return sess, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}

	if len(sessions) > opts.Limit {
		result.HasMore = true
		sessions = sessions[:opts.Limit]
	}
	result.Data = append(result.Data, sessions...)
	if len(result.Data) > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[len(result.Data)-1].ID
	}
	return result, nil
}

// DeleteSession removes the session; messages are removed by cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND ($2::text = '' OR owner = $2)`,
		id, storage.GetOwner(ctx),
	)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, sessionID string, start int, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, m := range msgs {
		batch.Queue(
			`INSERT INTO messages (session_id, seq, role, content) VALUES ($1, $2, $3, $4)`,
			sessionID, start+i, string(m.Role), m.Content,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
