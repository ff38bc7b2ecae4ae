package query_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/query"
)

func TestParseSort(t *testing.T) {
	s, err := query.ParseSort("", "")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY created_at DESC, id DESC", s.OrderBy())

	s, err = query.ParseSort("price", "asc")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY price ASC, id ASC", s.OrderBy())

	s, err = query.ParseSort("createdAt", "ASC")
	require.NoError(t, err)
	assert.Equal(t, "created_at", s.Column)
	assert.False(t, s.Desc)

	_, err = query.ParseSort("price; DROP TABLE listings", "")
	assert.ErrorIs(t, err, query.ErrValidation)

	_, err = query.ParseSort("area", "sideways")
	assert.ErrorIs(t, err, query.ErrValidation)
}

func TestBuildSetClause(t *testing.T) {
	title := "整租一室"
	price := 4200
	status := domain.StatusPending

	a, err := query.BuildSetClause(domain.ListingUpdate{Title: &title, Price: &price, Status: &status})
	require.NoError(t, err)

	assert.Equal(t, "SET title = ?, price = ?, status = ?, updated_at = now()", a.SQL())
	assert.Equal(t, []any{"整租一室", 4200, "pending"}, a.Params)
	assert.Equal(t, strings.Count(a.SQL(), "?"), len(a.Params))
}

func TestBuildSetClauseRejects(t *testing.T) {
	_, err := query.BuildSetClause(domain.ListingUpdate{})
	assert.ErrorIs(t, err, query.ErrValidation)

	zero := 0
	_, err = query.BuildSetClause(domain.ListingUpdate{Price: &zero})
	assert.ErrorIs(t, err, query.ErrValidation)

	area := -3.5
	_, err = query.BuildSetClause(domain.ListingUpdate{Area: &area})
	assert.ErrorIs(t, err, query.ErrValidation)

	bad := domain.Status("all")
	_, err = query.BuildSetClause(domain.ListingUpdate{Status: &bad})
	assert.ErrorIs(t, err, query.ErrValidation)
}
