// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pagination

// DefaultLimit replaces a negative limit.
const DefaultLimit = 10

// Pagination is a normalized page request. A zero Limit means "everything".
type Pagination struct {
	Page  int
	Limit int
}

// New clamps page to at least 1 and maps a negative limit to DefaultLimit.
func New(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 0 {
		limit = DefaultLimit
	}
	return Pagination{Page: page, Limit: limit}
}

// Unlimited reports whether offset and limit must be skipped.
func (p Pagination) Unlimited() bool {
	return p.Limit == 0
}

// Offset is the number of rows before the requested page.
func (p Pagination) Offset() int {
	if p.Unlimited() {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Page is a list result. Total counts the filtered set before offset and limit.
type Page[T any] struct {
	Items []T   `json:"data"`
	Total int64 `json:"count"`
}

// NewPage never returns nil items so the JSON shape is always an array.
func NewPage[T any](items []T, total int64) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total}
}
