// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qolzam/kinit-dal/internal/database/observability"
	"github.com/qolzam/kinit-dal/internal/database/utils"
)

type sessionKey struct{}

// Session is one unit of work: a transaction plus an identity cache keyed by (table, id).
// It belongs to a single request and must not be used from concurrent goroutines.
type Session struct {
	id         string
	tx         *sqlx.Tx
	started    time.Time
	operations int64
	metrics    *observability.MetricsCollector

	mu       sync.Mutex
	identity map[identityKey]interface{}
}

type identityKey struct {
	table string
	id    string
}

func newSession(tx *sqlx.Tx, mc *observability.MetricsCollector) *Session {
	if mc == nil {
		mc = observability.GetGlobalMetrics()
	}
	id := utils.GenerateSessionID()
	return &Session{
		id:       id,
		tx:       tx,
		started:  mc.StartSession(id),
		metrics:  mc,
		identity: make(map[identityKey]interface{}),
	}
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by RunInSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

func (s *Session) ID() string { return s.id }

// Tx exposes the transaction for statements the repositories do not cover.
func (s *Session) Tx() *sqlx.Tx { return s.tx }

// Operations counts statements issued through this session.
func (s *Session) Operations() int64 {
	return atomic.LoadInt64(&s.operations)
}

func (s *Session) touch() {
	atomic.AddInt64(&s.operations, 1)
	s.metrics.IncrementOperations()
}

func key(table string, id interface{}) identityKey {
	return identityKey{table: table, id: fmt.Sprint(id)}
}

// Cached returns the record previously loaded for (table, id).
func (s *Session) Cached(table string, id interface{}) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.identity[key(table, id)]
	if ok {
		s.metrics.RecordCacheHit()
	}
	return v, ok
}

// Remember stores record as the current state of (table, id).
func (s *Session) Remember(table string, id interface{}, record interface{}) {
	s.mu.Lock()
	s.identity[key(table, id)] = record
	s.mu.Unlock()
}

// Expire forces the next read of (table, id) to hit the store.
func (s *Session) Expire(table string, id interface{}) {
	s.mu.Lock()
	delete(s.identity, key(table, id))
	s.mu.Unlock()
}

// ExpireAll empties the identity cache.
func (s *Session) ExpireAll() {
	s.mu.Lock()
	s.identity = make(map[identityKey]interface{})
	s.mu.Unlock()
}
