package routes

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
}

func TestRoute_Expand(t *testing.T) {
	t.Parallel()

	r := Route{Method: "GET", Path: "/api/posts/:id/comments", Upstream: "/api/social/posts/{id}/comments/"}
	assert.Equal(t, []string{"id"}, r.Params())
	assert.Equal(t, []string{"id"}, r.Placeholders())

	got, err := r.Expand(map[string]string{"id": "a b/c"}, url.PathEscape)
	require.NoError(t, err)
	assert.Equal(t, "/api/social/posts/a%20b%2Fc/comments/", got)

	_, err = r.Expand(map[string]string{"id": ""}, url.PathEscape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestTable_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		table Table
	}{
		{name: "bad method", table: Table{{Name: "x", Method: "TRACE", Path: "/a", Upstream: "/a/"}}},
		{name: "relative upstream", table: Table{{Name: "x", Method: "GET", Path: "/a", Upstream: "a/"}}},
		{name: "unknown placeholder", table: Table{{Name: "x", Method: "GET", Path: "/a/:id", Upstream: "/a/{slug}/"}}},
		{name: "duplicate", table: Table{
			{Name: "x", Method: "GET", Path: "/a", Upstream: "/a/"},
			{Name: "y", Method: "GET", Path: "/a", Upstream: "/b/"},
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.table.Validate(), ErrInvalidRoute)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "routes.yaml")
	content := `
routes:
  - name: stems.list
    method: get
    path: /api/tracks/:id/stems
    upstream: /api/music/tracks/{id}/stems/
    pass_status: true
  - name: moderation.bans
    method: POST
    path: /api/moderation/bans
    upstream: /api/moderation/bans/
    dashboard: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "GET", table[0].Method)
	assert.True(t, table[0].PassStatus)
	assert.True(t, table[1].Dashboard)
}

func TestParse_RejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("routes:\n  - {name: x, method: GET, path: /a/:id, upstream: /a/{other}/}\n"))
	assert.ErrorIs(t, err, ErrInvalidRoute)
}
