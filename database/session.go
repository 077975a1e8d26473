/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Session is the unit of work shared by every repository built on the same
// connection. Writes join a transaction that is opened on first use and kept
// open until Flush commits it or Rollback discards it. Reads run on that
// transaction while it is open so they observe pending writes.
type Session struct {
	db     *bun.DB
	logger Logger

	// held for the whole of a Batch; Flush and Rollback wait for it
	batchMu sync.Mutex

	mu     sync.Mutex
	tx     *bun.Tx
	batch  string
	writes int
}

// NewSession returns a session over db.
func NewSession(db *bun.DB) *Session {
	return &Session{db: db, logger: GetLogger()}
}

// SetLogger replaces the session logger.
func (s *Session) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// DB returns the underlying Bun database.
func (s *Session) DB() *bun.DB { return s.db }

// Reader returns the handle reads should use.
func (s *Session) Reader() bun.IDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Writer returns the pending transaction, opening it if necessary, and counts
// one more queued write.
func (s *Session) Writer(ctx context.Context) (bun.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.openLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.writes++
	return tx, nil
}

func (s *Session) openLocked(ctx context.Context) (*bun.Tx, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin session transaction: %w", err)
		}
		s.tx = &tx
		s.batch = uuid.NewString()
		s.logger.Debug("Session transaction opened", "batch", s.batch)
	}
	return s.tx, nil
}

// Batch runs fn inside a savepoint of the session transaction. When fn fails
// its statements are rolled back to the savepoint and writes queued earlier
// stay pending. A transaction opened by a failed batch is discarded.
func (s *Session) Batch(ctx context.Context, fn func(ctx context.Context, idb bun.IDB) error) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.mu.Lock()
	tx, err := s.openLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	err = tx.RunInTx(ctx, nil, func(ctx context.Context, sp bun.Tx) error {
		return fn(ctx, sp)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.writes++
		return nil
	}
	if s.writes == 0 && s.tx == tx {
		if rbErr := s.rollbackLocked(); rbErr != nil {
			s.logger.Warn("Failed to discard session after batch error", "error", rbErr)
		}
	}
	return err
}

// Pending reports whether uncommitted writes exist.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Flush commits every write queued through this session, across all
// repositories sharing it. It is a no-op when nothing is pending.
func (s *Session) Flush(ctx context.Context) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, batch, writes := s.tx, s.batch, s.writes
	s.tx, s.batch, s.writes = nil, "", 0
	if err := tx.Commit(); err != nil {
		s.logger.Error("Session flush failed", "batch", batch, "writes", writes, "error", err)
		return fmt.Errorf("failed to commit session: %w", err)
	}
	s.logger.Debug("Session flushed", "batch", batch, "writes", writes)
	return nil
}

// Rollback discards pending writes.
func (s *Session) Rollback() error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

func (s *Session) rollbackLocked() error {
	if s.tx == nil {
		return nil
	}
	tx, batch := s.tx, s.batch
	s.tx, s.batch, s.writes = nil, "", 0
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback session: %w", err)
	}
	s.logger.Debug("Session rolled back", "batch", batch)
	return nil
}
