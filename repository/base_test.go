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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/types"
)

func newRepo(t *testing.T, stub *stubTable) *Repository[user] {
	t.Helper()
	r, err := NewWithTable[user](stub)
	require.NoError(t, err)
	return r
}

func TestConstructionRequiresTable(t *testing.T) {
	_, err := NewWithTable[user](nil)
	assert.ErrorIs(t, err, ErrUnboundTable)

	_, err = New[user](nil)
	assert.ErrorIs(t, err, ErrUnboundTable)
	assert.ErrorIs(t, err, table.ErrNoSession)
}

func TestSelectOnEmptyTableYieldsEmptyCollection(t *testing.T) {
	ctx := context.Background()
	stub := newStub()
	r := newRepo(t, stub)

	out, err := r.Select(table.Criteria{table.Group{"id": 1}}, false).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Rows)

	res, err := r.FetchAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, Collection, res.Kind())
	assert.Empty(t, res.Rows())
	assert.Equal(t, "[]", res.String())
}

func TestSelectSetsReadFlag(t *testing.T) {
	stub := newStub()
	r := newRepo(t, stub)
	assert.False(t, r.IsSelect())

	r.Select(nil, false)
	assert.True(t, r.IsSelect())

	r.Insert(&user{Email: "x"})
	assert.True(t, r.IsSelect(), "writes leave the flag as it was")
}

func TestBuilderForwardsInColumnNaming(t *testing.T) {
	stub := newStub()
	r := newRepo(t, stub)

	r.Update(map[string]any{"firstName": "A", "userEmail": "a@b"}, "userEmail").
		OrderBy("firstName", types.OrderDesc).
		Limit(5, 10).
		Delete([]map[string]any{{"firstName": "B"}})

	require.NoError(t, r.Err())
	require.Equal(t, []string{"update", "orderBy", "limit", "delete"}, stub.ops())
	assert.Equal(t, "user_email", stub.calls[0].key)
	assert.Equal(t, table.Criteria{table.Group{"first_name": "A", "user_email": "a@b"}}, stub.calls[0].criteria)
	assert.Equal(t, "first_name", stub.calls[1].column)
	assert.Equal(t, types.OrderDesc, stub.calls[1].order)
	assert.Equal(t, 5, stub.calls[2].count)
	assert.Equal(t, 10, stub.calls[2].offset)
	assert.Equal(t, table.Criteria{table.Group{"first_name": "B"}}, stub.calls[3].criteria)
}

func TestTypeMismatchSkipsDelegate(t *testing.T) {
	ctx := context.Background()
	for name, build := range map[string]func(*Repository[user]) *Repository[user]{
		"select": func(r *Repository[user]) *Repository[user] { return r.Select(plain{}, false) },
		"insert": func(r *Repository[user]) *Repository[user] { return r.Insert(&plain{}) },
		"update": func(r *Repository[user]) *Repository[user] { return r.Update([]plain{{}}, "") },
		"delete": func(r *Repository[user]) *Repository[user] { return r.Delete(7) },
	} {
		t.Run(name, func(t *testing.T) {
			stub := newStub()
			r := newRepo(t, stub)

			build(r).Limit(1, 0).Select(nil, false)
			assert.ErrorIs(t, r.Err(), ErrTypeMismatch)
			assert.Empty(t, stub.calls)

			_, err := r.Execute(ctx)
			assert.ErrorIs(t, err, ErrTypeMismatch)
			assert.Zero(t, stub.executed)
			assert.Equal(t, 1, stub.resets)

			// the error is reported once
			_, err = r.Execute(ctx)
			assert.NoError(t, err)
		})
	}
}

func TestFinderSurfacesTypeMismatch(t *testing.T) {
	stub := newStub(&user{ID: 1})
	r := newRepo(t, stub)

	_, err := r.FindWhere(context.Background(), plain{}, false)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = r.FindOneWhere(context.Background(), []any{3}, true)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Zero(t, stub.executed)
}

func TestInvalidBuilderArguments(t *testing.T) {
	r := newRepo(t, newStub())
	r.OrderBy("name", types.Order(9))
	assert.ErrorIs(t, r.Err(), ErrInvalidArgument)

	r = newRepo(t, newStub())
	r.Limit(-1, 0)
	assert.ErrorIs(t, r.Err(), ErrInvalidArgument)
}

func TestAlwaysJoinLastWriteWins(t *testing.T) {
	stub := newStub()
	r := newRepo(t, stub)

	same := r.AlwaysJoin("t1", table.JoinOptions{On: "opt = 1"}).
		AlwaysJoin("t1", table.JoinOptions{On: "opt = 2"})
	assert.Same(t, r, same)

	r.Select(nil, false)
	require.Equal(t, []string{"join", "select"}, stub.ops())
	assert.Equal(t, "t1", stub.calls[0].table)
	assert.Equal(t, "opt = 2", stub.calls[0].options.On)

	// replayed on every select
	r.AlwaysJoin("a0", table.JoinOptions{Type: table.JoinInner})
	r.Select(nil, false)
	assert.Equal(t, []string{"join", "select", "join", "join", "select"}, stub.ops())
	assert.Equal(t, "a0", stub.calls[2].table)
	assert.Equal(t, "t1", stub.calls[3].table)
}

func TestCountReplaysRegisteredJoins(t *testing.T) {
	stub := newStub(&user{ID: 1})
	r := newRepo(t, stub)
	r.AlwaysJoin("teams", table.JoinOptions{Type: table.JoinInner})

	n, err := r.Count(context.Background(), map[string]any{"teams.name": "core"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, []string{"join"}, stub.ops())
	assert.Equal(t, "teams", stub.calls[0].table)
}

func TestJoinAppliesOnce(t *testing.T) {
	stub := newStub()
	r := newRepo(t, stub)
	r.Join("teams", table.JoinOptions{}).Select(nil, false)
	r.Select(nil, false)
	assert.Equal(t, []string{"join", "select", "select"}, stub.ops())
}

func TestExecutePassesDelegateFailureThrough(t *testing.T) {
	stub := newStub()
	stub.fail = errors.New("no such table: users")
	r := newRepo(t, stub)

	out, err := r.Select(nil, false).Execute(context.Background())
	assert.Nil(t, out)
	assert.EqualError(t, err, "no such table: users")
}

func TestMetadataForwarding(t *testing.T) {
	stub := newStub()
	stub.name, stub.pk = "skus", "code"
	r := newRepo(t, stub)
	assert.Equal(t, "skus", r.TableName())
	assert.Equal(t, "code", r.PrimaryKey())
	assert.Same(t, stub, r.Table())
}

func TestCountAndPageOverStub(t *testing.T) {
	ctx := context.Background()
	stub := newStub(&user{ID: 1}, &user{ID: 2})
	r := newRepo(t, stub)

	n, err := r.Count(ctx, map[string]any{"firstName": "A"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := r.Page(ctx, types.NewPageRequest(2, 5, nil, []types.Sort{{Column: "firstName", Direction: types.OrderDesc}}))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, []string{"orderBy", "limit", "select"}, stub.ops())
	assert.Equal(t, 5, stub.calls[1].count)
	assert.Equal(t, 5, stub.calls[1].offset)

	empty := newRepo(t, newStub())
	page, err = empty.Page(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
}
