package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationNormalizesParams(t *testing.T) {
	p := NewPagination(0, -5, "created_at", true)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.PageSize)
	assert.Equal(t, "created_at", p.SortBy)
	assert.True(t, p.SortDesc)
}

func TestPaginationSetTotal(t *testing.T) {
	p := NewPagination(2, 10, "started_at", true)
	p.SetTotal(25)

	assert.Equal(t, int64(25), p.TotalItems)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(3, 10, "", false)
	p.SetTotal(25)
	assert.False(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(1, 10, "", false)
	p.SetTotal(0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)
}

func TestPaginationOffsetAndLimit(t *testing.T) {
	p := NewPagination(3, 20, "", false)

	assert.Equal(t, 40, p.GetOffset())
	assert.Equal(t, 20, p.GetLimit())
}

func TestPaginationSortOrder(t *testing.T) {
	assert.Equal(t, "created_at DESC", NewPagination(1, 10, "", false).GetSortOrder())
	assert.Equal(t, "started_at DESC", NewPagination(1, 10, "started_at", true).GetSortOrder())
	assert.Equal(t, "title ASC", NewPagination(1, 10, "title", false).GetSortOrder())
}
