package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// InTx runs fn inside a transaction. The transaction is committed when fn returns nil and
// rolled back otherwise. A positive lockTimeout is applied with SET LOCAL so row-lock waits
// inside fn are bounded.
func (p *Pool) InTx(ctx context.Context, lockTimeout time.Duration, fn func(pgx.Tx) error) error {
	tx, err := p.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if lockTimeout > 0 {
		// SET does not take bind parameters.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
