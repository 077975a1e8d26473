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

	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/types"
)

type user struct {
	table.BaseRow `bun:"-" json:"-"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	Email     string `bun:"email" json:"email"`
	FirstName string `bun:"first_name" json:"first_name"`
}

type keyedUser struct {
	user
	key string
}

func (k *keyedUser) PrimaryKeyValue() any { return k.key }

type plain struct{ ID int64 }

type call struct {
	op       string
	criteria table.Criteria
	key      string
	toJSON   bool
	table    string
	options  table.JoinOptions
	column   string
	order    types.Order
	count    int
	offset   int
}

// stubTable records every call and serves canned rows.
type stubTable struct {
	name     string
	pk       string
	rows     []*user
	fail     error
	calls    []call
	queued   int
	executed int
	resets   int
}

var _ table.Table[user] = (*stubTable)(nil)

func newStub(rows ...*user) *stubTable {
	return &stubTable{name: "users", pk: "id", rows: rows}
}

func (s *stubTable) record(c call) {
	s.calls = append(s.calls, c)
	s.queued++
}

func (s *stubTable) Select(criteria table.Criteria, toJSON bool) {
	s.record(call{op: "select", criteria: criteria, toJSON: toJSON})
}

func (s *stubTable) Insert(rows table.Criteria) { s.record(call{op: "insert", criteria: rows}) }

func (s *stubTable) Update(rows table.Criteria, key string) {
	s.record(call{op: "update", criteria: rows, key: key})
}

func (s *stubTable) Delete(criteria table.Criteria) { s.record(call{op: "delete", criteria: criteria}) }

func (s *stubTable) Limit(count, offset int) {
	s.record(call{op: "limit", count: count, offset: offset})
}

func (s *stubTable) OrderBy(column string, direction types.Order) {
	s.record(call{op: "orderBy", column: column, order: direction})
}

func (s *stubTable) Join(name string, options table.JoinOptions) {
	s.record(call{op: "join", table: name, options: options})
}

func (s *stubTable) Execute(context.Context) (*table.Outcome[user], error) {
	s.executed++
	s.queued = 0
	if s.fail != nil {
		return nil, s.fail
	}
	out := &table.Outcome[user]{Rows: s.rows}
	if s.lastSelect().toJSON {
		data, _ := json.Marshal(s.rows)
		out.JSON = string(data)
	}
	return out, nil
}

func (s *stubTable) Reset() {
	s.resets++
	s.queued = 0
}

func (s *stubTable) Count(_ context.Context, _ table.Criteria) (int, error) {
	return len(s.rows), s.fail
}

func (s *stubTable) Name() string { return s.name }

func (s *stubTable) PrimaryKey() string { return s.pk }

func (s *stubTable) ColumnValue(row any, column string) (any, bool) {
	u, ok := row.(*user)
	if !ok {
		return nil, false
	}
	switch column {
	case "id":
		return u.ID, true
	case "email":
		return u.Email, true
	case "first_name":
		return u.FirstName, true
	}
	return nil, false
}

func (s *stubTable) ops() []string {
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.op
	}
	return out
}

func (s *stubTable) lastSelect() call {
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].op == "select" {
			return s.calls[i]
		}
	}
	return call{}
}
