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
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/dscribe/database"
	"github.com/tomoncle/dscribe/types"
	"github.com/tomoncle/dscribe/utils"
)

// ErrNoSession is returned by New when no usable session is given.
var ErrNoSession = errors.New("table: session is not connected")

type opKind int

const (
	opSelect opKind = iota
	opInsert
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opSelect:
		return "select"
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type operation struct {
	kind     opKind
	criteria Criteria
	key      string
	toJSON   bool
}

type joinClause struct {
	table   string
	options JoinOptions
}

type orderClause struct {
	column    string
	direction types.Order
}

type bunTable[T any] struct {
	session *database.Session
	meta    *schema.Table
	logger  *logrus.Logger

	ops    []operation
	joins  []joinClause
	orders []orderClause
	limit  int
	offset int
}

var _ Table[struct{}] = (*bunTable[struct{}])(nil)

// New binds a handle for entity type T to session. T must be a struct type
// known to Bun.
func New[T any](session *database.Session) (Table[T], error) {
	if session == nil || session.DB() == nil {
		return nil, ErrNoSession
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("table: %s is not a struct type", typ)
	}
	return &bunTable[T]{
		session: session,
		meta:    session.DB().Table(typ),
		logger:  utils.GetLogger("TABLE"),
	}, nil
}

func (t *bunTable[T]) Name() string { return t.meta.Name }

func (t *bunTable[T]) PrimaryKey() string {
	if len(t.meta.PKs) > 0 {
		return t.meta.PKs[0].Name
	}
	return "id"
}

func (t *bunTable[T]) ColumnValue(row any, column string) (any, bool) {
	v := reflect.Indirect(reflect.ValueOf(row))
	if !v.IsValid() || v.Type() != t.meta.Type {
		return nil, false
	}
	f, ok := t.meta.FieldMap[column]
	if !ok {
		return nil, false
	}
	return f.Value(v).Interface(), true
}

func (t *bunTable[T]) Select(criteria Criteria, toJSON bool) {
	t.ops = append(t.ops, operation{kind: opSelect, criteria: criteria, toJSON: toJSON})
}

func (t *bunTable[T]) Insert(rows Criteria) {
	t.ops = append(t.ops, operation{kind: opInsert, criteria: rows})
}

func (t *bunTable[T]) Update(rows Criteria, keyColumn string) {
	if keyColumn == "" {
		keyColumn = t.PrimaryKey()
	}
	t.ops = append(t.ops, operation{kind: opUpdate, criteria: rows, key: keyColumn})
}

func (t *bunTable[T]) Delete(criteria Criteria) {
	t.ops = append(t.ops, operation{kind: opDelete, criteria: criteria})
}

func (t *bunTable[T]) Limit(count, offset int) {
	t.limit, t.offset = count, offset
}

func (t *bunTable[T]) OrderBy(column string, direction types.Order) {
	t.orders = append(t.orders, orderClause{column: column, direction: direction})
}

// Join queues a join for the next read. A join of the same table under the
// same alias replaces the queued one.
func (t *bunTable[T]) Join(table string, options JoinOptions) {
	for i, j := range t.joins {
		if j.table == table && j.options.Alias == options.Alias {
			t.joins[i].options = options
			return
		}
	}
	t.joins = append(t.joins, joinClause{table: table, options: options})
}

func (t *bunTable[T]) withJoins(q *bun.SelectQuery) *bun.SelectQuery {
	for _, j := range t.joins {
		q = t.applyJoin(q, j)
	}
	return q
}

func (t *bunTable[T]) Reset() {
	t.ops, t.joins, t.orders = nil, nil, nil
	t.limit, t.offset = 0, 0
}

// Execute runs the queued operations in order. The first failure stops the
// run; the queue is cleared either way. A run containing writes is one
// session batch, so a failure leaves none of its writes pending.
func (t *bunTable[T]) Execute(ctx context.Context) (*Outcome[T], error) {
	defer t.Reset()

	out := &Outcome[T]{}
	if !t.writes() {
		if err := t.runAll(ctx, t.session.Reader(), out); err != nil {
			return nil, err
		}
		return out, nil
	}
	err := t.session.Batch(ctx, func(ctx context.Context, idb bun.IDB) error {
		return t.runAll(ctx, idb, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *bunTable[T]) writes() bool {
	for _, op := range t.ops {
		if op.kind != opSelect {
			return true
		}
	}
	return false
}

func (t *bunTable[T]) runAll(ctx context.Context, idb bun.IDB, out *Outcome[T]) error {
	for _, op := range t.ops {
		start := time.Now()
		n, err := t.run(ctx, idb, op, out)
		fields := logrus.Fields{
			"table":   t.Name(),
			"op":      op.kind.String(),
			"groups":  len(op.criteria),
			"elapsed": utils.ElapsedMillis(time.Since(start)),
		}
		if err != nil {
			_, kind := database.IsSqlError(err)
			fields["kind"] = kind.String()
			t.logger.WithFields(fields).WithError(err).Debug("table operation failed")
			return fmt.Errorf("%s %s: %w", op.kind, t.Name(), err)
		}
		fields["rows"] = n
		t.logger.WithFields(fields).Debug("table operation done")
	}
	return nil
}

func (t *bunTable[T]) run(ctx context.Context, idb bun.IDB, op operation, out *Outcome[T]) (int64, error) {
	var (
		n   int64
		err error
	)
	switch op.kind {
	case opSelect:
		var rows []*T
		if rows, err = t.runSelect(ctx, idb, op.criteria); err != nil {
			return 0, err
		}
		out.Rows, out.JSON = rows, ""
		if op.toJSON {
			data, err := json.Marshal(rows)
			if err != nil {
				return 0, fmt.Errorf("failed to serialize rows: %w", err)
			}
			out.JSON = string(data)
		}
		return int64(len(rows)), nil
	case opInsert:
		n, err = t.runInsert(ctx, idb, op.criteria)
	case opUpdate:
		n, err = t.runUpdate(ctx, idb, op.criteria, op.key)
	case opDelete:
		n, err = t.runDelete(ctx, idb, op.criteria)
	}
	out.Affected += n
	return n, err
}

func (t *bunTable[T]) runSelect(ctx context.Context, idb bun.IDB, criteria Criteria) ([]*T, error) {
	groups, err := t.groups(criteria, false)
	if err != nil {
		return nil, err
	}
	rows := make([]*T, 0)
	q := t.withJoins(idb.NewSelect().Model(&rows))
	q = q.ApplyQueryBuilder(whereGroups(groups, true))
	for _, o := range t.orders {
		prefix, ident := columnIdent(o.column, true)
		q = q.OrderExpr(prefix+"? "+o.direction.String(), ident)
	}
	if t.limit > 0 {
		q = q.Limit(t.limit)
	}
	if t.offset > 0 {
		q = q.Offset(t.offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = make([]*T, 0)
	}
	return rows, nil
}

func (t *bunTable[T]) Count(ctx context.Context, criteria Criteria) (int, error) {
	groups, err := t.groups(criteria, false)
	if err != nil {
		return 0, err
	}
	return t.withJoins(t.session.Reader().NewSelect().Model((*T)(nil))).
		ApplyQueryBuilder(whereGroups(groups, true)).
		Count(ctx)
}

func (t *bunTable[T]) runInsert(ctx context.Context, idb bun.IDB, rows Criteria) (int64, error) {
	var total int64
	for _, c := range rows {
		var q *bun.InsertQuery
		switch v := c.(type) {
		case Group:
			m := map[string]interface{}(v)
			q = idb.NewInsert().Model(&m).TableExpr(t.Name())
		case Row:
			ptr, err := t.entityPointer(v)
			if err != nil {
				return total, err
			}
			q = idb.NewInsert().Model(ptr)
		default:
			return total, fmt.Errorf("unsupported row %T", c)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return total, err
		}
		total += rowsAffected(res)
	}
	return total, nil
}

func (t *bunTable[T]) runUpdate(ctx context.Context, idb bun.IDB, rows Criteria, key string) (int64, error) {
	var total int64
	for _, c := range rows {
		var q *bun.UpdateQuery
		switch v := c.(type) {
		case Group:
			keyValue, ok := v[key]
			if !ok {
				return total, fmt.Errorf("update %s: key column %q missing", t.Name(), key)
			}
			m := make(map[string]interface{}, len(v))
			for col, val := range v {
				if col != key {
					m[col] = val
				}
			}
			q = idb.NewUpdate().Model(&m).TableExpr(t.Name()).Where("? = ?", bun.Ident(key), keyValue)
		case Row:
			ptr, err := t.entityPointer(v)
			if err != nil {
				return total, err
			}
			keyValue, ok := t.ColumnValue(ptr, key)
			if !ok {
				return total, fmt.Errorf("update %s: unknown key column %q", t.Name(), key)
			}
			q = idb.NewUpdate().Model(ptr).ExcludeColumn(key).Where("? = ?", bun.Ident(key), keyValue)
		default:
			return total, fmt.Errorf("unsupported row %T", c)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return total, err
		}
		total += rowsAffected(res)
	}
	return total, nil
}

func (t *bunTable[T]) runDelete(ctx context.Context, idb bun.IDB, criteria Criteria) (int64, error) {
	groups, err := t.groups(criteria, true)
	if err != nil {
		return 0, err
	}
	res, err := idb.NewDelete().
		Model((*T)(nil)).
		ApplyQueryBuilder(whereGroups(groups, false)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

// groups turns criteria into column maps. Entities contribute their non-zero
// columns; with byKey an entity whose primary key is set contributes only
// the key.
func (t *bunTable[T]) groups(criteria Criteria, byKey bool) ([]Group, error) {
	out := make([]Group, 0, len(criteria))
	for _, c := range criteria {
		switch v := c.(type) {
		case Group:
			out = append(out, v)
		case Row:
			g, err := t.rowGroup(v, byKey)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		default:
			return nil, fmt.Errorf("unsupported criterion %T", c)
		}
	}
	return out, nil
}

func (t *bunTable[T]) rowGroup(row Row, byKey bool) (Group, error) {
	v := reflect.Indirect(reflect.ValueOf(row))
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("unsupported entity %T", row)
	}
	tbl := t.session.DB().Table(v.Type())
	if byKey && len(tbl.PKs) > 0 {
		pk := tbl.PKs[0]
		if !pk.HasZeroValue(v) {
			return Group{pk.Name: pk.Value(v).Interface()}, nil
		}
	}
	g := make(Group, len(tbl.Fields))
	for _, f := range tbl.Fields {
		if !f.HasZeroValue(v) {
			g[f.Name] = f.Value(v).Interface()
		}
	}
	return g, nil
}

func (t *bunTable[T]) entityPointer(row Row) (*T, error) {
	switch v := any(row).(type) {
	case *T:
		return v, nil
	case T:
		return &v, nil
	}
	return nil, fmt.Errorf("entity %T does not belong to table %s", row, t.Name())
}

// whereGroups ORs the groups, each an AND of column conditions. Any empty
// group matches everything, so no condition is added.
func whereGroups(groups []Group, qualify bool) func(bun.QueryBuilder) bun.QueryBuilder {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		if len(groups) == 0 {
			return q
		}
		for _, g := range groups {
			if len(g) == 0 {
				return q
			}
		}
		return q.WhereGroup(" AND ", func(q bun.QueryBuilder) bun.QueryBuilder {
			for _, g := range groups {
				g := g
				q = q.WhereGroup(" OR ", func(q bun.QueryBuilder) bun.QueryBuilder {
					for _, col := range sortedColumns(g) {
						q = whereColumn(q, col, g[col], qualify)
					}
					return q
				})
			}
			return q
		})
	}
}

func whereColumn(q bun.QueryBuilder, column string, value any, qualify bool) bun.QueryBuilder {
	prefix, ident := columnIdent(column, qualify)
	if value == nil {
		return q.Where(prefix+"? IS NULL", ident)
	}
	rv := reflect.ValueOf(value)
	if (rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8) || rv.Kind() == reflect.Array {
		return q.Where(prefix+"? IN (?)", ident, bun.In(value))
	}
	return q.Where(prefix+"? = ?", ident, value)
}

// columnIdent qualifies bare columns with the model alias. Dotted names are
// taken as already qualified.
func columnIdent(column string, qualify bool) (string, bun.Ident) {
	if !qualify || strings.Contains(column, ".") {
		return "", bun.Ident(column)
	}
	return "?TableAlias.", bun.Ident(column)
}

func sortedColumns(g Group) []string {
	cols := make([]string, 0, len(g))
	for col := range g {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
