package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/query"
)

func TestPlanPage(t *testing.T) {
	p, err := query.PlanPage(domain.PageSpec{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.Page{Page: 2, Limit: 10, Offset: 10}, p)
	assert.Equal(t, 3, query.TotalPages(23, p.Limit))
}

func TestPlanPageOffsets(t *testing.T) {
	for page := 1; page <= 20; page++ {
		for limit := 1; limit <= query.MaxLimit; limit += 7 {
			p, err := query.PlanPage(domain.PageSpec{Page: page, Limit: limit})
			require.NoError(t, err)
			assert.Equal(t, (page-1)*limit, p.Offset)
			assert.GreaterOrEqual(t, p.Offset, 0)
		}
	}
}

func TestPlanPageCapsLimit(t *testing.T) {
	p, err := query.PlanPage(domain.PageSpec{Page: 3, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, query.MaxLimit, p.Limit)
	assert.Equal(t, 2*query.MaxLimit, p.Offset)
}

func TestPlanPageRejects(t *testing.T) {
	tests := []struct {
		name string
		spec domain.PageSpec
	}{
		{name: "zero limit", spec: domain.PageSpec{Page: 1, Limit: 0}},
		{name: "negative limit", spec: domain.PageSpec{Page: 1, Limit: -5}},
		{name: "zero page", spec: domain.PageSpec{Page: 0, Limit: 10}},
		{name: "negative page", spec: domain.PageSpec{Page: -1, Limit: 10}},
		{name: "huge page", spec: domain.PageSpec{Page: 1 << 40, Limit: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := query.PlanPage(tt.spec)
			assert.ErrorIs(t, err, query.ErrValidation)
		})
	}
}

func TestParsePageSpec(t *testing.T) {
	spec, err := query.ParsePageSpec("", "")
	require.NoError(t, err)
	assert.Equal(t, domain.PageSpec{Page: 1, Limit: 10}, spec)

	spec, err = query.ParsePageSpec("4", " 25 ")
	require.NoError(t, err)
	assert.Equal(t, domain.PageSpec{Page: 4, Limit: 25}, spec)

	_, err = query.ParsePageSpec("two", "")
	assert.ErrorIs(t, err, query.ErrValidation)

	_, err = query.ParsePageSpec("1", "1; DROP TABLE listings")
	assert.ErrorIs(t, err, query.ErrValidation)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, query.TotalPages(0, 10))
	assert.Equal(t, 1, query.TotalPages(1, 10))
	assert.Equal(t, 1, query.TotalPages(10, 10))
	assert.Equal(t, 2, query.TotalPages(11, 10))
	assert.Equal(t, 0, query.TotalPages(5, 0))
}
