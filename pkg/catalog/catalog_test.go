package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probedb/pkg/storage/page"
)

func TestCatalogPersistsEveryMutation(t *testing.T) {
	metaFile := filepath.Join(t.TempDir(), "meta.json")

	c, err := New(metaFile)
	require.NoError(t, err)
	assert.Empty(t, c.ListIndexes())

	require.NoError(t, c.CreateIndex("users", 0, 1024))
	require.NoError(t, c.CreateIndex("orders", 5, 64))
	assert.ErrorIs(t, c.CreateIndex("users", 9, 8), ErrIndexExists)
	require.NoError(t, c.UpdateHeader("orders", 40, 128))

	reopened, err := New(metaFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, reopened.ListIndexes())

	meta, ok := reopened.GetIndex("orders")
	require.True(t, ok)
	assert.Equal(t, page.PageID(40), meta.Header())
	assert.Equal(t, 128, meta.BucketCount)

	require.NoError(t, reopened.DropIndex("users"))
	_, ok = reopened.GetIndex("users")
	assert.False(t, ok)

	again, err := New(metaFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, again.ListIndexes())
}

func TestCatalogMissingIndex(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "meta.json"))
	require.NoError(t, err)

	assert.ErrorIs(t, c.UpdateHeader("nope", 1, 1), ErrIndexNotFound)
	assert.ErrorIs(t, c.DropIndex("nope"), ErrIndexNotFound)
}

func TestCatalogRejectsGarbage(t *testing.T) {
	metaFile := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(metaFile, []byte("{not json"), 0o644))

	_, err := New(metaFile)
	assert.Error(t, err)
}

func TestCatalogGetReturnsCopy(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "meta.json"))
	require.NoError(t, err)
	require.NoError(t, c.CreateIndex("idx", 3, 16))

	meta, _ := c.GetIndex("idx")
	meta.HeaderPageID = 99
	again, _ := c.GetIndex("idx")
	assert.Equal(t, int32(3), again.HeaderPageID)
}
