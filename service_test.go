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

type book struct {
	bun.BaseModel `bun:"table:books,alias:b"`
	table.BaseRow `bun:"-" json:"-"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Title  string `bun:"title"`
	Author string `bun:"author"`
}

func openBooks(t *testing.T) *database.Session {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.NewCreateTable().Model((*book)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return database.NewSession(db)
}

func TestServiceCrud(t *testing.T) {
	ctx := context.Background()
	svc := NewService[book](WithSession(openBooks(t)), WithAutoFlush(true))

	require.NoError(t, svc.Save(ctx,
		&book{Title: "Dune", Author: "Herbert"},
		&book{Title: "Emma", Author: "Austen"},
		&book{Title: "Persuasion", Author: "Austen"},
	))

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	austen, err := svc.FindBy(ctx, "author", "Austen")
	require.NoError(t, err)
	assert.Len(t, austen, 2)

	dune, err := svc.Get(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", dune.Title)

	dune.Title = "Dune Messiah"
	require.NoError(t, svc.Update(ctx, dune))
	got, err := svc.Get(ctx, dune.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)

	require.NoError(t, svc.Delete(ctx, dune.ID))
	_, err = svc.Get(ctx, dune.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := svc.Count(ctx, map[string]any{"author": "Austen"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServiceListPageAndQuery(t *testing.T) {
	ctx := context.Background()
	svc := NewService[book](WithSession(openBooks(t)))

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Save(ctx, &book{Title: fmt.Sprintf("t%d", i), Author: "anon"}))
	}
	require.NoError(t, svc.Flush(ctx))

	listed, err := svc.List(ctx, []map[string]any{{"title": "t1"}, {"title": "t3"}})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	page, err := svc.Page(ctx, types.NewPageRequestWithOrders(1, 2, types.Sort{Column: "title", Direction: types.OrderDesc}))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "t4", page.Items[0].Title)

	raw, err := svc.Query(ctx, "SELECT * FROM books WHERE title = ?", "t2")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "anon", raw[0].Author)

	var count int
	count, err = svc.SelectBuilder().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestServiceWritesWaitForFlush(t *testing.T) {
	ctx := context.Background()
	session := openBooks(t)
	svc := NewService[book](WithSession(session))

	require.NoError(t, svc.Save(ctx, &book{Title: "Ulysses"}))
	assert.True(t, session.Pending())
	require.NoError(t, session.Rollback())

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestServiceUsesGlobalSession(t *testing.T) {
	ctx := context.Background()
	session := openBooks(t)
	database.UseDB(session.DB())
	t.Cleanup(func() { _ = database.CloseDB() })

	svc := NewService[book](WithAutoFlush(true))
	require.NoError(t, svc.Save(ctx, &book{Title: "Beloved"}))
	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Beloved", all[0].Title)
}
