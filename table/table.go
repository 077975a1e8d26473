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

package table

import (
	"context"

	"github.com/tomoncle/dscribe/types"
)

// Criterion is one AND-group of a Criteria list: a Group or a Row.
type Criterion interface {
	criterion()
}

// Row marks a struct as a table entity. Embed BaseRow to satisfy it.
type Row interface {
	Criterion
	row()
}

// BaseRow is embedded by entity structs.
//
//	type User struct {
//		table.BaseRow `bun:"-"`
//		ID    int64  `bun:"id,pk,autoincrement"`
//		Email string `bun:"email"`
//	}
type BaseRow struct{}

func (BaseRow) criterion() {}

func (BaseRow) row() {}

// Keyed is implemented by entities that expose their own primary key value.
type Keyed interface {
	PrimaryKeyValue() any
}

// Group maps column names to expected values; all pairs must hold.
type Group map[string]any

func (Group) criterion() {}

// Criteria is an OR of AND-groups. An empty list places no constraint.
type Criteria []Criterion

// JoinType is the SQL join flavor.
type JoinType string

const (
	JoinLeft  JoinType = "LEFT"
	JoinInner JoinType = "INNER"
	JoinRight JoinType = "RIGHT"
)

// JoinOptions configures a join. With an empty On the handle derives the
// condition from known foreign keys or from the <singular>_id convention.
type JoinOptions struct {
	Type  JoinType
	On    string
	Alias string
	Args  []any
}

// Outcome is the raw result of Execute. Rows and JSON come from the last
// queued select; Affected sums the rows touched by queued writes.
type Outcome[T any] struct {
	Rows     []*T
	JSON     string
	Affected int64
}

// Table is a handle over one table of entity type T. Select, Insert, Update,
// Delete, Limit, OrderBy and Join queue work; Execute runs it and resets the
// queue.
type Table[T any] interface {
	Select(criteria Criteria, toJSON bool)
	Insert(rows Criteria)
	Update(rows Criteria, keyColumn string)
	Delete(criteria Criteria)
	Limit(count, offset int)
	OrderBy(column string, direction types.Order)
	Join(table string, options JoinOptions)
	Execute(ctx context.Context) (*Outcome[T], error)
	// Reset drops queued operations, joins, limit and ordering.
	Reset()
	// Count counts rows matching criteria through the queued joins. The
	// queue is left as is.
	Count(ctx context.Context, criteria Criteria) (int, error)

	Name() string
	PrimaryKey() string
	// ColumnValue reads column from an entity of this table.
	ColumnValue(row any, column string) (any, bool)
}
