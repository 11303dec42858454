package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return readError(ctx, err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// readError classifies a failed read. Cancellation by the caller is passed
// through untouched; anything else means the store could not answer and is
// reported as Unavailable.
func readError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("appointment", err)
	}
	return errors.Unavailable(err)
}
