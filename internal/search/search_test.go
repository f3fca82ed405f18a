package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflifeapp/shelflife/internal/domain"
)

// setupTestIndex creates a temporary search index for testing.
func setupTestIndex(t *testing.T) (*SearchIndex, string) {
	t.Helper()

	dir := t.TempDir()
	index, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	return index, dir
}

func product(id, userID, name, brand string) *domain.Product {
	p := &domain.Product{UserID: userID, Name: name, Brand: brand, RemainingAmount: 100}
	p.ID = id
	p.InitTimestamps(time.Now())
	return p
}

func TestNewSearchIndex(t *testing.T) {
	index, _ := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearchIndex_IndexAndDelete(t *testing.T) {
	index, _ := setupTestIndex(t)
	ctx := context.Background()

	p := product("prd-1", "user-1", "Hydrating Lip Balm", "Acme")
	require.NoError(t, index.IndexProduct(ctx, p))
	require.NoError(t, index.IndexProduct(ctx, p), "reindexing replaces")

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, index.DeleteProduct(ctx, "prd-1"))
	require.NoError(t, index.DeleteProduct(ctx, "prd-1"))

	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearchIndex_Search(t *testing.T) {
	index, _ := setupTestIndex(t)
	ctx := context.Background()

	balm := product("prd-balm", "user-1", "Hydrating Lip Balm", "Acme")
	balm.Barcode = "3600523"
	require.NoError(t, index.IndexProducts([]*domain.Product{
		balm,
		product("prd-serum", "user-1", "Vitamin C Serum", "Glow"),
		product("prd-other", "user-2", "Lip Balm", "Acme"),
	}))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"name", "balm", []string{"prd-balm"}},
		{"brand", "glow", []string{"prd-serum"}},
		{"typo", "serun", []string{"prd-serum"}},
		{"prefix", "vita", []string{"prd-serum"}},
		{"barcode", "3600523", []string{"prd-balm"}},
		{"no match", "mascara", []string{}},
		{"empty", "  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := index.Search(ctx, "user-1", tt.query, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchIndex_ScopedByUser(t *testing.T) {
	index, _ := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexProduct(ctx, product("prd-1", "user-1", "Lip Balm", "")))

	ids, err := index.Search(ctx, "user-2", "balm", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearchIndex_Rebuild(t *testing.T) {
	index, _ := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexProduct(ctx, product("prd-stale", "user-1", "Old Toner", "")))
	require.NoError(t, index.Rebuild([]*domain.Product{product("prd-new", "user-1", "New Toner", "")}))

	ids, err := index.Search(ctx, "user-1", "toner", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"prd-new"}, ids)
}

func TestNewSearchIndex_RecreatesOnVersionChange(t *testing.T) {
	dir := t.TempDir()

	index, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	require.NoError(t, index.IndexProduct(context.Background(), product("prd-1", "user-1", "Lip Balm", "")))
	require.NoError(t, index.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "search.version"), []byte("0"), 0o644))

	index, err = NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer index.Close()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestNewSearchIndex_RecreatesCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "search.bleve")

	require.NoError(t, os.MkdirAll(indexPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(indexPath, "index_meta.json"), []byte("not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "search.version"), []byte(mappingVersion), 0o644))

	index, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer index.Close()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}
