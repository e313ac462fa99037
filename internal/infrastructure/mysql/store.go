package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freelance-market/internal/domain"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const errDuplicateKey = 1062

// DBTX is the part of database/sql the repositories use. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction, committing on success and rolling back on
// error or panic. Panics are rethrown.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("mysql: begin: %w: %v", domain.ErrPersistence, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("mysql: commit: %w: %v", domain.ErrPersistence, cerr)
		}
	}()

	return fn(ctx, tx)
}

// Store implements domain.Store on MySQL. Rows read with
// GetAuctionForUpdate inside WithinTx are locked with SELECT ... FOR UPDATE.
// The DSN needs parseTime=true and clientFoundRows=true so that an update
// writing unchanged values still reports its row.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Repositories() domain.Repositories {
	return repositoriesOn(s.db)
}

func (s *Store) WithinTx(ctx context.Context, fn domain.TxFunc) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, repositoriesOn(tx))
	})
}

func repositoriesOn(db DBTX) domain.Repositories {
	return domain.Repositories{
		Auctions:      NewMySQLAuctionRepository(db),
		Offers:        NewMySQLOfferRepository(db),
		Subscriptions: NewMySQLSubscriptionRepository(db),
		History:       NewMySQLHistoryRepository(db),
	}
}

// mapError translates driver errors into domain error kinds.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("mysql: %s: %w", op, domain.ErrNotFound)
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateKey {
		return fmt.Errorf("mysql: %s: %w", op, domain.ErrDuplicateEntity)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("mysql: %s: %w", op, err)
	}
	return fmt.Errorf("mysql: %s: %w: %v", op, domain.ErrPersistence, err)
}

// expectOneRow turns "no row affected" into notFound.
func expectOneRow(op string, res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("mysql: %s: %w", op, notFound)
	}
	return nil
}
