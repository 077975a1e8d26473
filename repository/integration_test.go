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
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/dscribe/database"
	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/types"
)

type member struct {
	bun.BaseModel `bun:"table:members,alias:m"`
	table.BaseRow `bun:"-" json:"-"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	Email     string `bun:"email,unique" json:"email"`
	FirstName string `bun:"first_name" json:"first_name"`
	ClubID    int64  `bun:"club_id,nullzero" json:"club_id"`
}

type club struct {
	bun.BaseModel `bun:"table:clubs,alias:c"`
	table.BaseRow `bun:"-"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

func openSession(t *testing.T) *database.Session {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	for _, model := range []interface{}{(*member)(nil), (*club)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	return database.NewSession(db)
}

func TestInsertThenSelectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)

	in := []*member{
		{Email: "ann@example.com", FirstName: "Ann"},
		{Email: "bob@example.com", FirstName: "Bob"},
	}
	out, err := members.Insert(in).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Affected)
	require.NoError(t, members.Flush(ctx))

	res, err := members.FindWhere(ctx, []any{&member{FirstName: "Ann"}}, false)
	require.NoError(t, err)
	require.Len(t, res.Rows(), 1)
	got := res.Rows()[0]
	assert.Equal(t, "ann@example.com", got.Email)
	assert.NotZero(t, got.ID)

	one, err := members.FindOne(ctx, got, false)
	require.NoError(t, err)
	assert.Equal(t, Entity, one.Kind())
	assert.Equal(t, got.ID, one.Entity().ID)

	byEmail, err := members.Dispatch(ctx, "findByEmail", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob", byEmail.(*Result[member]).Rows()[0].FirstName)
}

func TestUpdateDeleteAndPendingReads(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)

	_, err = members.Insert(map[string]any{"email": "cid@example.com", "firstName": "Cid"}).Execute(ctx)
	require.NoError(t, err)
	assert.True(t, s.Pending())

	// pending writes are visible to reads of the same session
	res, err := members.FindOneBy(ctx, "email", "cid@example.com", false)
	require.NoError(t, err)
	require.Equal(t, Entity, res.Kind())

	_, err = members.Update(map[string]any{"email": "cid@example.com", "firstName": "Cecil"}, "email").Execute(ctx)
	require.NoError(t, err)
	res, err = members.FindOneBy(ctx, "firstName", "Cecil", true)
	require.NoError(t, err)
	assert.Equal(t, Serialized, res.Kind())
	assert.Contains(t, res.Text(), `"email":"cid@example.com"`)

	require.NoError(t, s.Rollback())
	n, err := members.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushIsSharedAcrossRepositories(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)
	clubs, err := New[club](s)
	require.NoError(t, err)

	_, err = clubs.Insert(&club{Name: "chess"}).Execute(ctx)
	require.NoError(t, err)
	_, err = members.Insert(&member{Email: "d@example.com", ClubID: 1}).Execute(ctx)
	require.NoError(t, err)

	require.NoError(t, members.Flush(ctx))
	assert.False(t, s.Pending())

	n, err := clubs.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAlwaysJoinAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)
	clubs, err := New[club](s)
	require.NoError(t, err)

	_, err = clubs.Insert([]*club{{Name: "chess"}, {Name: "go"}}).Execute(ctx)
	require.NoError(t, err)
	_, err = members.Insert([]*member{
		{Email: "a@example.com", ClubID: 1},
		{Email: "b@example.com", ClubID: 2},
		{Email: "c@example.com", ClubID: 2},
	}).Execute(ctx)
	require.NoError(t, err)

	members.AlwaysJoin("clubs", table.JoinOptions{Type: table.JoinInner})
	res, err := members.FindBy(ctx, "clubs.name", "go", false)
	require.NoError(t, err)
	assert.Len(t, res.Rows(), 2)

	res, err = members.OrderBy("email", types.OrderDesc).FindOneWhere(ctx, map[string]any{"clubs.name": "go"}, false)
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", res.Entity().Email)
}

func TestPageAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)

	batch := make([]*member, 0, 7)
	for i := 0; i < 7; i++ {
		batch = append(batch, &member{Email: fmt.Sprintf("m%d@example.com", i), FirstName: "M"})
	}
	_, err = members.Insert(batch).Execute(ctx)
	require.NoError(t, err)

	page, err := members.Page(ctx, types.NewPageRequest(2, 3, map[string]any{"firstName": "M"},
		[]types.Sort{{Column: "email", Direction: types.OrderAsc}}))
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 3, page.Pages())
	require.Len(t, page.Items, 3)
	assert.Equal(t, "m3@example.com", page.Items[0].Email)
}

func TestQueryFailureIsLoggedAndEmpty(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)

	res, err := members.FindBy(ctx, "noSuchColumn", 1, false)
	require.NoError(t, err)
	assert.Equal(t, Collection, res.Kind())
	assert.Empty(t, res.Rows())

	res, err = members.FindWhere(ctx, map[string]any{"noSuchColumn": 1}, true)
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Kind())
	assert.Error(t, res.Cause())
}

func TestPageFiltersOnAlwaysJoinedTable(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)
	clubs, err := New[club](s)
	require.NoError(t, err)

	_, err = clubs.Insert([]*club{{Name: "chess"}, {Name: "go"}}).Execute(ctx)
	require.NoError(t, err)
	_, err = members.Insert([]*member{
		{Email: "a@example.com", ClubID: 1},
		{Email: "b@example.com", ClubID: 2},
	}).Execute(ctx)
	require.NoError(t, err)

	members.AlwaysJoin("clubs", table.JoinOptions{})
	page, err := members.Page(ctx, types.NewPageRequestWithCriteria(1, 10, map[string]any{"clubs.name": "chess"}))
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a@example.com", page.Items[0].Email)

	n, err := members.Count(ctx, map[string]any{"clubs.name": "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFailedInsertIsNotFlushed(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	members, err := New[member](s)
	require.NoError(t, err)

	_, err = members.Insert([]*member{{Email: "dup@example.com"}, {Email: "dup@example.com"}}).Execute(ctx)
	require.Error(t, err)
	assert.False(t, s.Pending())

	_, err = members.Insert(&member{Email: "solo@example.com"}).Execute(ctx)
	require.NoError(t, err)
	_, err = members.Insert([]*member{{Email: "next@example.com"}, {Email: "solo@example.com"}}).Execute(ctx)
	require.Error(t, err)

	require.NoError(t, members.Flush(ctx))
	n, err := members.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := members.FindOneBy(ctx, "email", "solo@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, Entity, res.Kind())
}
