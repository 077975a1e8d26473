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

import "encoding/json"

// Kind tags the shape of a Result.
type Kind int

const (
	Collection Kind = iota
	Entity
	NotFound
	Serialized
)

func (k Kind) String() string {
	switch k {
	case Collection:
		return "collection"
	case Entity:
		return "entity"
	case NotFound:
		return "not_found"
	case Serialized:
		return "serialized"
	default:
		return "unknown"
	}
}

// Result is what finders return: a collection of rows, one entity, nothing,
// or JSON text.
type Result[T any] struct {
	kind   Kind
	rows   []*T
	entity *T
	text   string
	cause  error
}

func collectionOf[T any](rows []*T) *Result[T] {
	if rows == nil {
		rows = make([]*T, 0)
	}
	return &Result[T]{kind: Collection, rows: rows}
}

func entityOf[T any](e *T) *Result[T] { return &Result[T]{kind: Entity, entity: e} }

func notFound[T any](cause error) *Result[T] { return &Result[T]{kind: NotFound, cause: cause} }

func serialized[T any](text string) *Result[T] { return &Result[T]{kind: Serialized, text: text} }

// Kind returns the result's tag.
func (r *Result[T]) Kind() Kind { return r.kind }

// Rows returns the collection; it is empty for other kinds.
func (r *Result[T]) Rows() []*T {
	if r.kind != Collection {
		return []*T{}
	}
	return r.rows
}

// Entity returns the single entity, or nil unless Kind is Entity.
func (r *Result[T]) Entity() *T { return r.entity }

// Text returns the JSON of a Serialized result.
func (r *Result[T]) Text() string { return r.text }

// Cause returns the query failure a NotFound result stands for, if any.
func (r *Result[T]) Cause() error { return r.cause }

// Empty reports whether the result carries no row.
func (r *Result[T]) Empty() bool {
	switch r.kind {
	case Collection:
		return len(r.rows) == 0
	case Entity:
		return r.entity == nil
	case Serialized:
		return r.text == "" || r.text == "[]" || r.text == "{}"
	default:
		return true
	}
}

// String renders the result as JSON. NotFound renders as "{}".
func (r *Result[T]) String() string {
	switch r.kind {
	case Serialized:
		return r.text
	case NotFound:
		return "{}"
	case Entity:
		return marshal(r.entity, "{}")
	default:
		return marshal(r.rows, "[]")
	}
}

func marshal(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}
