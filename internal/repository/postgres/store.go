// Package postgres implements repository.Store on PostgreSQL via pgx. It is
// the system of record: Atomic maps to a database transaction, and the debit
// check-and-apply is a single conditional UPDATE so a stale read can never
// drive a balance negative.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokenomy/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Atomic runs fn inside one database transaction. Nested calls join the
// enclosing transaction instead of opening a second one.
func (s *Store) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	if _, nested := s.q.(pgx.Tx); nested {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Accounts() repository.AccountStore         { return accountStore{s.q} }
func (s *Store) Transactions() repository.TransactionStore { return txStore{s.q} }
func (s *Store) Communities() repository.CommunityStore    { return communityStore{s.q} }
func (s *Store) Cooldowns() repository.CooldownStore       { return cooldownStore{s.q} }
func (s *Store) Shares() repository.ShareStore             { return shareStore{s.q} }
func (s *Store) Usage() repository.UsageStore              { return usageStore{s.q} }
func (s *Store) Prices() repository.PriceHistoryStore      { return priceStore{s.q} }
