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
	"fmt"
	"strings"

	"github.com/tomoncle/dscribe/table"
	"github.com/tomoncle/dscribe/types"
	"github.com/tomoncle/dscribe/utils"
)

const findByPrefix = "findby"

// Dispatch runs an operation chosen by name, for callers that route by
// operation name. Names are case-insensitive:
//
//	findBy<Column>(value[, toJSON])           -> *Result[T]
//	select([criteria[, toJSON]])              -> *Repository[T]
//	insert(entities), delete(entities)        -> *Repository[T]
//	update(entities[, keyProperty])           -> *Repository[T]
//	limit(count[, offset])                    -> *Repository[T]
//	orderBy(column[, direction])              -> *Repository[T]
//	join(table[, table.JoinOptions])          -> *Repository[T]
//	getPrimaryKey(), getName()                -> string
//	execute()                                 -> *table.Outcome[T]
//
// Chainable operations return the repository together with its pending
// builder error.
func (r *Repository[T]) Dispatch(ctx context.Context, name string, args ...any) (any, error) {
	op := strings.ToLower(name)
	if strings.HasPrefix(op, findByPrefix) && len(op) > len(findByPrefix) {
		if len(args) < 1 || len(args) > 2 {
			return nil, invalidArgument(name, "want value and optional toJSON, got %d arguments", len(args))
		}
		toJSON, err := optBool(name, args, 1)
		if err != nil {
			return nil, err
		}
		return r.FindBy(ctx, utils.Capitalize(name[len(findByPrefix):]), args[0], toJSON)
	}

	switch op {
	case "select":
		var criteria any
		if len(args) > 0 {
			criteria = args[0]
		}
		toJSON, err := optBool(name, args, 1)
		if err != nil {
			return nil, err
		}
		return r.Select(criteria, toJSON).chained()
	case "insert", "delete":
		if len(args) != 1 {
			return nil, invalidArgument(name, "want entities, got %d arguments", len(args))
		}
		if op == "insert" {
			return r.Insert(args[0]).chained()
		}
		return r.Delete(args[0]).chained()
	case "update":
		if len(args) < 1 || len(args) > 2 {
			return nil, invalidArgument(name, "want entities and optional key, got %d arguments", len(args))
		}
		key, err := optString(name, args, 1)
		if err != nil {
			return nil, err
		}
		return r.Update(args[0], key).chained()
	case "limit":
		if len(args) < 1 || len(args) > 2 {
			return nil, invalidArgument(name, "want count and optional offset, got %d arguments", len(args))
		}
		count, ok := args[0].(int)
		if !ok {
			return nil, invalidArgument(name, "count must be int, got %T", args[0])
		}
		offset := 0
		if len(args) == 2 {
			if offset, ok = args[1].(int); !ok {
				return nil, invalidArgument(name, "offset must be int, got %T", args[1])
			}
		}
		return r.Limit(count, offset).chained()
	case "orderby":
		if len(args) < 1 || len(args) > 2 {
			return nil, invalidArgument(name, "want column and optional direction, got %d arguments", len(args))
		}
		column, ok := args[0].(string)
		if !ok {
			return nil, invalidArgument(name, "column must be string, got %T", args[0])
		}
		direction := types.OrderAsc
		if len(args) == 2 {
			switch d := args[1].(type) {
			case types.Order:
				direction = d
			case string:
				direction = types.ParseOrder(d)
			default:
				return nil, invalidArgument(name, "direction must be types.Order or string, got %T", args[1])
			}
		}
		return r.OrderBy(column, direction).chained()
	case "join":
		if len(args) < 1 || len(args) > 2 {
			return nil, invalidArgument(name, "want table and optional options, got %d arguments", len(args))
		}
		tableName, ok := args[0].(string)
		if !ok {
			return nil, invalidArgument(name, "table must be string, got %T", args[0])
		}
		var options table.JoinOptions
		if len(args) == 2 {
			if options, ok = args[1].(table.JoinOptions); !ok {
				return nil, invalidArgument(name, "options must be table.JoinOptions, got %T", args[1])
			}
		}
		return r.Join(tableName, options).chained()
	case "getprimarykey":
		return r.PrimaryKey(), nil
	case "getname":
		return r.TableName(), nil
	case "execute":
		out, err := r.Execute(ctx)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
}

func (r *Repository[T]) chained() (any, error) { return r, r.err }

func optBool(op string, args []any, i int) (bool, error) {
	if len(args) <= i {
		return false, nil
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, invalidArgument(op, "argument %d must be bool, got %T", i, args[i])
	}
	return b, nil
}

func optString(op string, args []any, i int) (string, error) {
	if len(args) <= i {
		return "", nil
	}
	s, ok := args[i].(string)
	if !ok {
		return "", invalidArgument(op, "argument %d must be string, got %T", i, args[i])
	}
	return s, nil
}
