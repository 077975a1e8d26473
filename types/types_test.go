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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrder(t *testing.T) {
	assert.Equal(t, "ASC", OrderAsc.String())
	assert.Equal(t, "DESC", OrderDesc.String())
	assert.Equal(t, OrderDesc, ParseOrder("desc"))
	assert.Equal(t, OrderAsc, ParseOrder("sideways"))

	bad := Order(7)
	assert.False(t, bad.IsValid())
	assert.Equal(t, IllegalValue, bad.Number())
	assert.Equal(t, IllegalName, bad.Name())
	assert.Equal(t, IllegalDesc, bad.Desc())
}

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewPageRequestWithOrders(3, 5, Sort{Column: "createdAt", Direction: OrderDesc})
	assert.Equal(t, 10, p.GetOffset())
	assert.Len(t, p.GetOrders(), 1)
	assert.Nil(t, p.GetCriteria())
}

func TestPaginationPages(t *testing.T) {
	p := NewDefaultPagination[struct{}](1, 10)
	assert.Equal(t, 0, p.Pages())
	p.Total = 21
	assert.Equal(t, 3, p.Pages())
}
