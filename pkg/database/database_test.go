package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBuilderOnConflictDoNothing(t *testing.T) {
	ib := NewInsertBuilder().
		InsertInto("venue_source_links").
		Cols("id", "venue_id", "fingerprint").
		Values("l1", "v1", "abc")
	ib.OnConflictDoNothing("venue_id", "fingerprint")

	query, args := ib.Build()
	assert.Equal(t, "INSERT INTO venue_source_links (id, venue_id, fingerprint) VALUES ($1, $2, $3) ON CONFLICT (venue_id, fingerprint) DO NOTHING", query)
	assert.Equal(t, []any{"l1", "v1", "abc"}, args)
}

func TestJSONB(t *testing.T) {
	j := NewJSONB(map[string]int{"TABC": 2})
	v, err := j.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"TABC":2}`), v)

	var out JSONB[map[string]int]
	require.NoError(t, out.Scan([]byte(`{"SALES_TAX":3}`)))
	assert.Equal(t, 3, out.Data["SALES_TAX"])

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out.Data)

	assert.Error(t, out.Scan(42))
}

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000003_runs.up.sql", "000002_links.up.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	v, err := latestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = latestVersion(t.TempDir())
	assert.Error(t, err)
}
