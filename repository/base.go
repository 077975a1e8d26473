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

package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tomoncle/dscribe/database"
	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/types"
	"github.com/tomoncle/dscribe/utils"
)

// Repository builds and runs operations against one table of entity type T.
// A Repository is meant for a single goroutine and a single unit of work.
//
// Builder methods return the repository for chaining. The first error in a
// chain is kept: later builder calls are skipped and Execute reports it.
type Repository[T any] struct {
	table   table.Table[T]
	session *database.Session
	joins   map[string]table.JoinOptions
	reading bool
	err     error
	logger  *logrus.Logger
}

// New binds a repository for T to the session's database.
func New[T any](session *database.Session) (*Repository[T], error) {
	t, err := table.New[T](session)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnboundTable, err)
	}
	r, _ := NewWithTable[T](t)
	r.session = session
	return r, nil
}

// NewWithTable binds a repository to an existing table handle. Flush then
// commits the process-wide session.
func NewWithTable[T any](t table.Table[T]) (*Repository[T], error) {
	if t == nil {
		return nil, ErrUnboundTable
	}
	return &Repository[T]{table: t, logger: utils.GetLogger("REPOSITORY")}, nil
}

// Table returns the bound table handle.
func (r *Repository[T]) Table() table.Table[T] { return r.table }

// TableName returns the name of the bound table.
func (r *Repository[T]) TableName() string { return r.table.Name() }

// PrimaryKey returns the primary key column of the bound table.
func (r *Repository[T]) PrimaryKey() string { return r.table.PrimaryKey() }

// IsSelect reports whether the last built operation was a Select.
func (r *Repository[T]) IsSelect() bool { return r.reading }

// Err returns the pending builder error, if any.
func (r *Repository[T]) Err() error { return r.err }

func (r *Repository[T]) fail(err error) *Repository[T] {
	if r.err == nil {
		r.err = err
	}
	return r
}

// takeErr returns the pending builder error and clears it together with the
// work queued before it.
func (r *Repository[T]) takeErr() error {
	err := r.err
	if err != nil {
		r.err = nil
		r.table.Reset()
	}
	return err
}

// Select queues a read. Registered joins are replayed first.
func (r *Repository[T]) Select(criteria any, toJSON bool) *Repository[T] {
	if r.err != nil {
		return r
	}
	c, err := Normalize(criteria)
	if err != nil {
		return r.fail(err)
	}
	r.replayJoins()
	r.table.Select(c, toJSON)
	r.reading = true
	return r
}

// Insert queues inserts of entities or column/value maps.
func (r *Repository[T]) Insert(entities any) *Repository[T] {
	if r.err != nil {
		return r
	}
	c, err := Normalize(entities)
	if err != nil {
		return r.fail(err)
	}
	r.table.Insert(c)
	return r
}

// Update queues updates matched on keyProperty. An empty keyProperty matches
// on the table's primary-key column, which is "id" unless the model declares
// another one.
func (r *Repository[T]) Update(entities any, keyProperty string) *Repository[T] {
	if r.err != nil {
		return r
	}
	c, err := Normalize(entities)
	if err != nil {
		return r.fail(err)
	}
	r.table.Update(c, utils.CamelToSnake(keyProperty))
	return r
}

// Delete queues a delete of the rows matching entities.
func (r *Repository[T]) Delete(entities any) *Repository[T] {
	if r.err != nil {
		return r
	}
	c, err := Normalize(entities)
	if err != nil {
		return r.fail(err)
	}
	r.table.Delete(c)
	return r
}

// Limit bounds the rows returned by the queued select.
func (r *Repository[T]) Limit(count, offset int) *Repository[T] {
	if r.err != nil {
		return r
	}
	if count < 0 || offset < 0 {
		return r.fail(invalidArgument("limit", "negative count %d or offset %d", count, offset))
	}
	r.table.Limit(count, offset)
	return r
}

// OrderBy adds an ordering term. column may use property naming.
func (r *Repository[T]) OrderBy(column string, direction types.Order) *Repository[T] {
	if r.err != nil {
		return r
	}
	if column == "" || !direction.IsValid() {
		return r.fail(invalidArgument("orderBy", "column %q direction %d", column, direction))
	}
	r.table.OrderBy(utils.CamelToSnake(column), direction)
	return r
}

// Join adds a join to the next select only.
func (r *Repository[T]) Join(tableName string, options table.JoinOptions) *Repository[T] {
	if r.err != nil {
		return r
	}
	r.table.Join(tableName, options)
	return r
}

// Execute runs the queued operations and returns the raw outcome.
func (r *Repository[T]) Execute(ctx context.Context) (*table.Outcome[T], error) {
	if err := r.takeErr(); err != nil {
		return nil, err
	}
	return r.table.Execute(ctx)
}

// Flush commits every pending write of the shared session, including writes
// queued by other repositories on it.
func (r *Repository[T]) Flush(ctx context.Context) error {
	if r.session != nil {
		return r.session.Flush(ctx)
	}
	return database.Flush(ctx)
}

// Count returns the number of rows matching criteria. Registered joins apply
// as they do for Select.
func (r *Repository[T]) Count(ctx context.Context, criteria any) (int, error) {
	c, err := Normalize(criteria)
	if err != nil {
		return 0, err
	}
	r.replayJoins()
	return r.table.Count(ctx, c)
}

// Page returns one page of rows matching the request's criteria.
func (r *Repository[T]) Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[T], error) {
	if req == nil {
		req = types.NewDefaultPageRequest(1, 10)
	}
	page := types.NewDefaultPagination[T](req.GetPage(), req.GetPageSize())
	total, err := r.Count(ctx, req.GetCriteria())
	if err != nil || total == 0 {
		return page, err
	}
	for _, o := range req.GetOrders() {
		r.OrderBy(o.Column, o.Direction)
	}
	out, err := r.Limit(req.GetPageSize(), req.GetOffset()).
		Select(req.GetCriteria(), false).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	page.Total = total
	page.Items = out.Rows
	return page, nil
}
