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
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tomoncle/dscribe/database"
	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/utils"
)

// FetchAll returns every row. A failed query yields an empty collection,
// serialized as "[]" when toJSON is set.
func (r *Repository[T]) FetchAll(ctx context.Context, toJSON bool) (*Result[T], error) {
	return r.collect(ctx, nil, toJSON)
}

// FindBy returns rows whose column equals value. column may use property
// naming. A failed query yields an empty collection.
func (r *Repository[T]) FindBy(ctx context.Context, column string, value any, toJSON bool) (*Result[T], error) {
	return r.collect(ctx, table.Group{utils.CamelToSnake(column): value}, toJSON)
}

// FindOneBy returns the first row whose column equals value.
func (r *Repository[T]) FindOneBy(ctx context.Context, column string, value any, toJSON bool) (*Result[T], error) {
	return r.FindOneWhere(ctx, table.Group{utils.CamelToSnake(column): value}, toJSON)
}

// Find returns the rows whose primary key equals id.
func (r *Repository[T]) Find(ctx context.Context, id any, toJSON bool) (*Result[T], error) {
	return r.FindBy(ctx, r.PrimaryKey(), id, toJSON)
}

// FindOne returns the row identified by idOrEntity. An entity contributes
// its primary key value, read through table.Keyed when implemented.
func (r *Repository[T]) FindOne(ctx context.Context, idOrEntity any, toJSON bool) (*Result[T], error) {
	id := idOrEntity
	switch v := idOrEntity.(type) {
	case table.Keyed:
		id = v.PrimaryKeyValue()
	case table.Row:
		value, ok := r.table.ColumnValue(v, r.PrimaryKey())
		if !ok {
			return nil, invalidArgument("findOne", "%T is not an entity of %s", v, r.TableName())
		}
		id = value
	}
	return r.FindOneBy(ctx, r.PrimaryKey(), id, toJSON)
}

// FindWhere returns the rows matching criteria. A failed query yields an
// empty collection, or a NotFound result carrying the failure when toJSON
// is set.
func (r *Repository[T]) FindWhere(ctx context.Context, criteria any, toJSON bool) (*Result[T], error) {
	out, err := r.run(ctx, criteria, toJSON)
	if err != nil {
		return nil, err
	}
	if out.err != nil {
		if toJSON {
			return notFound[T](out.err), nil
		}
		return collectionOf[T](nil), nil
	}
	if toJSON {
		return serialized[T](out.JSON), nil
	}
	return collectionOf(out.Rows), nil
}

// FindOneWhere returns the first row matching criteria, or NotFound.
func (r *Repository[T]) FindOneWhere(ctx context.Context, criteria any, toJSON bool) (*Result[T], error) {
	res, err := r.FindWhere(ctx, criteria, false)
	if err != nil {
		return nil, err
	}
	rows := res.Rows()
	if len(rows) == 0 {
		return notFound[T](nil), nil
	}
	if toJSON {
		data, err := json.Marshal(rows[0])
		if err != nil {
			return nil, fmt.Errorf("failed to serialize row: %w", err)
		}
		return serialized[T](string(data)), nil
	}
	return entityOf(rows[0]), nil
}

func (r *Repository[T]) collect(ctx context.Context, criteria any, toJSON bool) (*Result[T], error) {
	out, err := r.run(ctx, criteria, toJSON)
	if err != nil {
		return nil, err
	}
	rows := out.Rows
	if out.err != nil {
		rows = nil
	}
	if toJSON {
		if out.err != nil {
			return serialized[T]("[]"), nil
		}
		return serialized[T](out.JSON), nil
	}
	return collectionOf(rows), nil
}

type finderOutcome[T any] struct {
	*table.Outcome[T]
	err error
}

// run selects and executes. Builder errors are returned; query failures are
// logged and carried in the outcome.
func (r *Repository[T]) run(ctx context.Context, criteria any, toJSON bool) (*finderOutcome[T], error) {
	r.Select(criteria, toJSON)
	if err := r.takeErr(); err != nil {
		return nil, err
	}
	out, err := r.table.Execute(ctx)
	if err != nil {
		_, kind := database.IsSqlError(err)
		r.logger.WithFields(logrus.Fields{
			"table": r.TableName(),
			"kind":  kind.String(),
		}).WithError(err).Warn("query failed, returning empty result")
		return &finderOutcome[T]{Outcome: &table.Outcome[T]{}, err: err}, nil
	}
	return &finderOutcome[T]{Outcome: out}, nil
}
