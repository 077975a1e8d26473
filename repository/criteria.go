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
	"reflect"

	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/utils"
)

// Normalize converts input into Criteria. Accepted shapes are a table.Row, a
// map[string]any or table.Group, a slice of any of those, table.Criteria and
// nil. Map keys are converted to column naming. Converted maps are written
// back into a caller's map slice, so normalizing twice is harmless.
func Normalize(input any) (table.Criteria, error) {
	switch v := input.(type) {
	case nil:
		return table.Criteria{}, nil
	case table.Criteria:
		for i, c := range v {
			n, err := normalizeElement(c)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	case table.Group:
		return table.Criteria{columnGroup(v)}, nil
	case map[string]any:
		return table.Criteria{columnGroup(v)}, nil
	case table.Row:
		return table.Criteria{v}, nil
	case []table.Group:
		out := make(table.Criteria, len(v))
		for i, g := range v {
			v[i] = columnGroup(g)
			out[i] = v[i]
		}
		return out, nil
	case []map[string]any:
		out := make(table.Criteria, len(v))
		for i, m := range v {
			g := columnGroup(m)
			v[i] = g
			out[i] = g
		}
		return out, nil
	case []any:
		out := make(table.Criteria, len(v))
		for i, e := range v {
			n, err := normalizeElement(e)
			if err != nil {
				return nil, err
			}
			switch e.(type) {
			case map[string]any:
				v[i] = map[string]any(n.(table.Group))
			case table.Group:
				v[i] = n
			}
			out[i] = n
		}
		return out, nil
	}

	rv := reflect.ValueOf(input)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, typeMismatch(input)
	}
	out := make(table.Criteria, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		n, err := normalizeElement(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func normalizeElement(e any) (table.Criterion, error) {
	switch v := e.(type) {
	case table.Group:
		return columnGroup(v), nil
	case map[string]any:
		return columnGroup(v), nil
	case table.Row:
		return v, nil
	}
	return nil, typeMismatch(e)
}

func columnGroup(m map[string]any) table.Group {
	g := make(table.Group, len(m))
	for k, v := range m {
		g[utils.CamelToSnake(k)] = v
	}
	return g
}
