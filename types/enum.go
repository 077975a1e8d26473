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

package types

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Order is the sort direction accepted by OrderBy.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

var _ BaseEnum = OrderAsc

// ParseOrder accepts "asc"/"desc" in any case; anything else is OrderAsc.
func ParseOrder(s string) Order {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return OrderDesc
	}
	return OrderAsc
}

func (o Order) IsValid() bool { return o == OrderAsc || o == OrderDesc }

func (o Order) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

// String returns the SQL keyword.
func (o Order) String() string {
	switch o {
	case OrderAsc:
		return "ASC"
	case OrderDesc:
		return "DESC"
	default:
		return IllegalName
	}
}

func (o Order) Name() string { return o.String() }

func (o Order) Desc() string {
	switch o {
	case OrderAsc:
		return "ascending"
	case OrderDesc:
		return "descending"
	default:
		return IllegalDesc
	}
}
