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
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is matched by every *TypeMismatchError.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnboundTable is returned when a repository cannot be bound to a table.
	ErrUnboundTable = errors.New("repository has no table handle")
	// ErrUnknownOperation is returned by Dispatch for names outside its set.
	ErrUnknownOperation = errors.New("unknown repository operation")
	// ErrInvalidArgument is returned for arguments of the wrong shape.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TypeMismatchError reports a criteria element that is neither an entity
// nor a column/value map.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: %s must implement %s", e.Got, e.Want)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func typeMismatch(v any) error {
	return &TypeMismatchError{Want: "table.Row", Got: fmt.Sprintf("%T", v)}
}

func invalidArgument(op string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, op, fmt.Sprintf(format, args...))
}
