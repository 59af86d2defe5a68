package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationParams_Validate(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, 100},
		{"negative uses default", -5, 100},
		{"within range kept", 50, 50},
		{"above maximum clamped", 5000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PaginationParams{Limit: tt.limit}
			p.Validate()
			assert.Equal(t, tt.want, p.Limit)
		})
	}
	assert.Equal(t, 100, DefaultPaginationParams().Limit)
}

func TestCursor_RoundTrip(t *testing.T) {
	assert.Empty(t, EncodeCursor(""))

	key, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, key)

	cursor := EncodeCursor("show|gamma|2019|s01")
	key, err = DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, "show|gamma|2019|s01", key)

	_, err = DecodeCursor("!!not base64!!")
	assert.Error(t, err)
}

func TestPaginate(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	id := func(s string) string { return s }

	first, err := Paginate(items, PaginationParams{Limit: 2}, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first.Items)
	assert.True(t, first.HasMore)
	assert.Equal(t, 5, first.Total)

	second, err := Paginate(items, PaginationParams{Limit: 2, Cursor: first.NextCursor}, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, second.Items)

	last, err := Paginate(items, PaginationParams{Limit: 2, Cursor: second.NextCursor}, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, last.Items)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextCursor)
}

func TestPaginate_Empty(t *testing.T) {
	res, err := Paginate([]string(nil), DefaultPaginationParams(), func(s string) string { return s })
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.False(t, res.HasMore)
}
