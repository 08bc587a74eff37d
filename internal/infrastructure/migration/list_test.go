package migration

import (
	"testing"
	"testing/fstest"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	t.Run("embedded schema is complete", func(t *testing.T) {
		names, err := List(migrations.FS)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"000001_create_external_id_mappings",
			"000002_create_taxonomy_terms",
			"000003_qualify_numeric_entity_ids",
		}, names)
	})

	t.Run("sorted and ignores other files", func(t *testing.T) {
		fsys := fstest.MapFS{
			"000002_b.up.sql":   {},
			"000002_b.down.sql": {},
			"000001_a.up.sql":   {},
			"000001_a.down.sql": {},
			"README.md":         {},
			"nested/x.up.sql":   {},
		}
		names, err := List(fsys)
		require.NoError(t, err)
		assert.Equal(t, []string{"000001_a", "000002_b"}, names)
	})

	t.Run("up without down fails", func(t *testing.T) {
		_, err := List(fstest.MapFS{"000001_a.up.sql": {}})
		assert.ErrorContains(t, err, "no down file")
	})

	t.Run("empty source", func(t *testing.T) {
		names, err := List(fstest.MapFS{})
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}
