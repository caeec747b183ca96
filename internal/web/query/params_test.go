package query

import (
	"net/http/httptest"
	"testing"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	ormquery "github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	r := httptest.NewRequest("GET", "/entries?filter[variable]=discharge&filter[title]=Soil*&limit=5&filter=x", nil)

	fields := ParseFilter(r)
	assert.Equal(t, ormquery.Fields{
		{Name: "title", Value: "Soil*"},
		{Name: "variable", Value: "discharge"},
	}, fields)

	assert.Empty(t, ParseFilter(httptest.NewRequest("GET", "/entries", nil)))
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    []int64
		wantErr bool
	}{
		{name: "missing", url: "/entries", want: nil},
		{name: "comma list", url: "/entries?ids=3,1,2", want: []int64{3, 1, 2}},
		{name: "repeated", url: "/entries?ids=3&ids=4,5", want: []int64{3, 4, 5}},
		{name: "empty value", url: "/entries?ids=", want: []int64{}},
		{name: "invalid", url: "/entries?ids=1,x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ParseIDs(httptest.NewRequest("GET", tt.url, nil), "ids")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, catalog.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(httptest.NewRequest("GET", "/entries?limit=10&offset=20", nil), 100)
	require.NoError(t, err)
	assert.Equal(t, 10, *page.Limit)
	assert.Equal(t, 20, *page.Offset)

	page, err = ParsePage(httptest.NewRequest("GET", "/entries", nil), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, *page.Limit)
	assert.Nil(t, page.Offset)

	page, err = ParsePage(httptest.NewRequest("GET", "/entries", nil), 0)
	require.NoError(t, err)
	assert.True(t, page.IsZero())

	_, err = ParsePage(httptest.NewRequest("GET", "/entries?limit=-1", nil), 100)
	assert.True(t, catalog.IsValidation(err))

	_, err = ParsePage(httptest.NewRequest("GET", "/entries?offset=ten", nil), 100)
	assert.True(t, catalog.IsValidation(err))
}

func TestParseInt64AndBool(t *testing.T) {
	r := httptest.NewRequest("GET", "/authors?entry_id=7&only_available=true&bad=yes-ish", nil)

	id, err := ParseInt64(r, "entry_id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), *id)

	id, err = ParseInt64(r, "missing")
	require.NoError(t, err)
	assert.Nil(t, id)

	b, err := ParseBool(r, "only_available", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = ParseBool(r, "missing", true)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = ParseBool(r, "bad", false)
	assert.True(t, catalog.IsValidation(err))
}
