// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/qolzam/kinit-dal/internal/database/observability"
	"github.com/qolzam/kinit-dal/internal/database/utils"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/platform/config"
)

// Client wraps sqlx.DB and provides connection pooling, health checks, and units of work.
type Client struct {
	db      *sqlx.DB
	metrics *observability.MetricsCollector
}

// NewClient opens the pool and pings it, retrying transient failures.
func NewClient(ctx context.Context, cfg *config.PostgreSQLConfig, policy *utils.RetryPolicy) (*Client, error) {
	db, err := sqlx.Open("postgres", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	err = utils.ExecuteWithRetry(ctx, policy, "postgres ping", func(ctx context.Context) error {
		return MapError("ping", db.PingContext(ctx))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Connected to PostgreSQL at %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return NewClientFromDB(db), nil
}

// NewClientFromDB wraps an existing pool.
func NewClientFromDB(db *sqlx.DB) *Client {
	return &Client{db: db, metrics: observability.GetGlobalMetrics()}
}

// WithMetrics replaces the metrics collector.
func (c *Client) WithMetrics(mc *observability.MetricsCollector) *Client {
	c.metrics = mc
	return c
}

// buildConnectionString prefers an explicit DSN, otherwise assembles key=value pairs.
func buildConnectionString(cfg *config.PostgreSQLConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		fmt.Sprintf("dbname=%s", cfg.Database),
	}
	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode))
	// lib/pq forwards unknown keys as run-time parameters.
	if cfg.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", cfg.Schema))
	}
	return strings.Join(parts, " ")
}

// DB returns the underlying *sqlx.DB connection
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return MapError("ping", c.db.PingContext(ctx))
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Executor returns the ambient session's transaction, or the pool when ctx carries none.
func (c *Client) Executor(ctx context.Context) sqlx.ExtContext {
	if s, ok := SessionFromContext(ctx); ok {
		s.touch()
		return s.tx
	}
	return c.db
}

// RunInSession runs fn inside one unit of work. fn receives a context carrying the session;
// every repository call made with it shares the transaction and identity cache. A call made
// while a session is already active joins it instead of nesting.
func (c *Client) RunInSession(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := SessionFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return MapError("begin", err)
	}
	s := newSession(tx, c.metrics)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			s.metrics.RollbackSession(s.id, s.started, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err = fn(WithSession(ctx, s)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.ErrorWithContext(ctx, "rollback of %s failed: %v", s.id, rbErr)
		}
		s.metrics.RollbackSession(s.id, s.started, err)
		return err
	}

	if err = tx.Commit(); err != nil {
		s.metrics.RollbackSession(s.id, s.started, err)
		return MapError("commit", err)
	}
	s.metrics.CommitSession(s.id, s.started, s.Operations())
	return nil
}
