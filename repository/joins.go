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
	"sort"

	"github.com/tomoncle/dscribe/table"
)

// AlwaysJoin registers a join replayed on every subsequent Select of this
// repository. Registering the same table again replaces its options.
func (r *Repository[T]) AlwaysJoin(tableName string, options table.JoinOptions) *Repository[T] {
	if r.joins == nil {
		r.joins = make(map[string]table.JoinOptions)
	}
	r.joins[tableName] = options
	return r
}

// replayJoins applies the registered joins in table-name order.
func (r *Repository[T]) replayJoins() {
	names := make([]string, 0, len(r.joins))
	for name := range r.joins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.table.Join(name, r.joins[name])
	}
}
