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

package dscribe

import (
	"context"
	"errors"

	"github.com/uptrace/bun"

	"github.com/tomoncle/dscribe/database"
	"github.com/tomoncle/dscribe/repository"
	"github.com/tomoncle/dscribe/types"
)

// ErrNotFound is returned by Get when no row has the given identifier.
var ErrNotFound = errors.New("dscribe: entity not found")

type Service[T any] interface {
	// Get returns a single entity by its primary key.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities matching criteria, in any shape the repository
	// normalizer accepts.
	List(ctx context.Context, criteria any) ([]*T, error)

	// FindBy returns entities whose column equals value.
	FindBy(ctx context.Context, column string, value any) ([]*T, error)

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Count returns the number of entities matching criteria.
	Count(ctx context.Context, criteria any) (int, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// Update modifies existing entities matched by primary key.
	Update(ctx context.Context, model ...*T) error

	// Delete removes the entity with the given primary key.
	Delete(ctx context.Context, id any) error

	// Flush commits the writes pending on the session.
	Flush(ctx context.Context) error

	// Repository returns a fresh repository bound to the session.
	Repository() (*repository.Repository[T], error)

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	session   *database.Session
	autoFlush bool
}

// WithSession binds the service to session instead of the global one.
func WithSession(session *database.Session) Option {
	return func(o *serviceOptions) { o.session = session }
}

// WithAutoFlush commits after every successful write.
func WithAutoFlush(enabled bool) Option {
	return func(o *serviceOptions) { o.autoFlush = enabled }
}

type baseServiceImpl[T any] struct {
	options serviceOptions
}

// NewService returns a Service over the global session. Each call builds a
// short-lived repository, so a Service is safe for concurrent use.
func NewService[T any](opts ...Option) Service[T] {
	s := &baseServiceImpl[T]{}
	for _, opt := range opts {
		opt(&s.options)
	}
	return s
}

func (s *baseServiceImpl[T]) session() *database.Session {
	if s.options.session != nil {
		return s.options.session
	}
	return database.GetSession()
}

func (s *baseServiceImpl[T]) Repository() (*repository.Repository[T], error) {
	session := s.session()
	if session == nil {
		return nil, database.ErrNotInitialized
	}
	return repository.New[T](session)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	res, err := repo.FindOne(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if res.Kind() != repository.Entity {
		return nil, ErrNotFound
	}
	return res.Entity(), nil
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, criteria any) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	out, err := repo.Select(criteria, false).Execute(ctx)
	if err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (s *baseServiceImpl[T]) FindBy(ctx context.Context, column string, value any) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	res, err := repo.FindBy(ctx, column, value, false)
	if err != nil {
		return nil, err
	}
	return res.Rows(), nil
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	session := s.session()
	if session == nil {
		return nil, database.ErrNotInitialized
	}
	rows := make([]*T, 0)
	if err := session.Reader().NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, criteria any) (int, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, criteria)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	if len(model) == 0 {
		return nil
	}
	return s.write(ctx, func(repo *repository.Repository[T]) *repository.Repository[T] {
		return repo.Insert(model)
	})
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model ...*T) error {
	if len(model) == 0 {
		return nil
	}
	return s.write(ctx, func(repo *repository.Repository[T]) *repository.Repository[T] {
		return repo.Update(model, "")
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.write(ctx, func(repo *repository.Repository[T]) *repository.Repository[T] {
		return repo.Delete(map[string]any{repo.PrimaryKey(): id})
	})
}

func (s *baseServiceImpl[T]) write(ctx context.Context, queue func(*repository.Repository[T]) *repository.Repository[T]) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	if _, err := queue(repo).Execute(ctx); err != nil {
		return err
	}
	if s.options.autoFlush {
		return repo.Flush(ctx)
	}
	return nil
}

func (s *baseServiceImpl[T]) Flush(ctx context.Context) error {
	session := s.session()
	if session == nil {
		return database.ErrNotInitialized
	}
	return session.Flush(ctx)
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	session := s.session()
	if session == nil {
		return nil
	}
	return session.Reader().NewSelect().Model((*T)(nil))
}
