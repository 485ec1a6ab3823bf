// Package postgres provides PostgreSQL persistence for characters and dungeon
// sessions using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/crawl/internal/config"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/dungeon"
)

// Pool wraps a pgx connection pool with health-check and lifecycle methods.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool creates a new PostgreSQL connection pool from the given configuration.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error. The pool is ready
// for queries upon successful return.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
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
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Health checks that the database is reachable within the given timeout.
//
// Precondition: The pool must not be closed.
// Postcondition: Returns nil if the database responds within the timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources.
//
// Postcondition: The pool is no longer usable after calling Close.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements dungeon.Transactor and character.Store on a pool.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a Store backed by db.
//
// Precondition: db must be a valid, open connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a database transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
//
// Postcondition: Returns fn's error, or a begin/commit error.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st dungeon.Stores) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, dungeon.Stores{
			Characters: NewCharacterRepository(tx),
			Sessions:   NewSessionRepository(tx),
		})
	})
}

// Characters returns a CharacterRepository for use outside a transaction.
func (s *Store) Characters() *CharacterRepository {
	return NewCharacterRepository(s.db)
}

// Sessions returns a SessionRepository for use outside a transaction.
func (s *Store) Sessions() *SessionRepository {
	return NewSessionRepository(s.db)
}

// Load implements character.Store.
func (s *Store) Load(ctx context.Context, id string) (*character.Character, error) {
	return s.Characters().Load(ctx, id)
}

// Save implements character.Store. The read-modify-write runs in its own
// transaction.
func (s *Store) Save(ctx context.Context, id string, u character.Update) error {
	return s.WithinTx(ctx, func(ctx context.Context, st dungeon.Stores) error {
		return st.Characters.Save(ctx, id, u)
	})
}

// Create inserts c and its child rows in one transaction.
//
// Postcondition: Returns nil, an error wrapping ErrCharacterExists, or a non-nil error.
func (s *Store) Create(ctx context.Context, c *character.Character) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return NewCharacterRepository(tx).Create(ctx, c)
	})
}

// constraintViolation returns the constraint name of a unique violation
// (SQLSTATE 23505), or "" when err is not one.
func constraintViolation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}
