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
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"

	"github.com/tomoncle/dscribe/database"
)

func (t *bunTable[T]) applyJoin(q *bun.SelectQuery, j joinClause) *bun.SelectQuery {
	typ := j.options.Type
	if typ == "" {
		typ = JoinLeft
	}
	ref := j.table
	if alias := j.options.Alias; alias != "" {
		q = q.Join(string(typ)+" JOIN ? AS ?", bun.Ident(j.table), bun.Ident(alias))
		ref = alias
	} else {
		q = q.Join(string(typ)+" JOIN ?", bun.Ident(j.table))
	}

	if on := j.options.On; on != "" {
		return q.JoinOn(on, j.options.Args...)
	}
	joinedCol, baseCol := t.joinColumns(j.table)
	return q.JoinOn("?.? = ?TableAlias.?", bun.Ident(ref), bun.Ident(joinedCol), bun.Ident(baseCol))
}

// joinColumns derives the join columns from registered foreign keys, falling
// back to joined.id = base.<singular joined>_id.
func (t *bunTable[T]) joinColumns(joined string) (joinedCol, baseCol string) {
	if jc, bc, ok := database.GetForeignKeyManager().JoinColumns(t.Name(), joined); ok {
		return jc, bc
	}
	return "id", ConventionalForeignKey(joined)
}

// ConventionalForeignKey returns the column conventionally referencing table,
// e.g. "order_items" gives "order_item_id".
func ConventionalForeignKey(table string) string {
	name := table
	prefix := ""
	if i := strings.LastIndex(table, "_"); i >= 0 {
		prefix, name = table[:i+1], table[i+1:]
	}
	return fmt.Sprintf("%s%s_id", prefix, inflection.Singular(name))
}
