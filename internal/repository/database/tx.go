package database

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

type txKey struct{}

// WithinTx runs fn in a transaction carried through ctx. If ctx already holds
// one, fn joins it and the outer caller decides commit or rollback.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.withTx(ctx, nil, fn)
}

// WithinSnapshotTx runs fn under REPEATABLE READ on postgres so every read in
// fn sees the same snapshot. SQLite transactions are already serializable.
func (d *DB) WithinSnapshotTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var opts *sql.TxOptions
	if d.Dialect() == "postgres" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	}
	return d.withTx(ctx, opts, fn)
}

func (d *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	var tx *gorm.DB
	if opts != nil {
		tx = d.gorm.WithContext(ctx).Begin(opts)
	} else {
		tx = d.gorm.WithContext(ctx).Begin()
	}
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// conn returns the transaction in ctx or the shared handle.
func (d *DB) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return d.gorm.WithContext(ctx)
}
