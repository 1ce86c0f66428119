// Package postgres opens the lib/pq connection pool used for analytics
// snapshots and runs functions inside transactions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/resilience"
)

// SQLSTATE classes that are safe to retry as a whole transaction.
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

type Client struct {
	DB *sql.DB
}

// New opens the pool and waits, with retries, for the server to answer.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	connector, err := pq.NewConnector(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{DB: db}
	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond}, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return c.Ping(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return c, nil
}

func (c *Client) Close() error { return c.DB.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }

// InTx runs fn in a transaction and commits if fn succeeds. A transaction
// aborted by a serialization failure or deadlock is rerun from the start,
// up to three times.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return resilience.Retry(ctx, "postgres-tx", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond}, func() error {
		err := c.runTx(ctx, fn)
		if err != nil && !Retryable(err) {
			return resilience.Permanent(err)
		}
		return err
	})
}

func (c *Client) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Retryable reports whether err aborted a transaction that may succeed if
// run again.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}
