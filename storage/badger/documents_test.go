package badger

import (
	"context"
	"testing"

	"github.com/poiesic/docanalysis/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStore(t *testing.T) {
	docs := newTestStores(t, 0).Documents
	ctx := context.Background()

	_, err := docs.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, docs.Put(ctx, "doc-1", []byte("# Plan\n\nShip it.")))
	data, err := docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "# Plan\n\nShip it.", string(data))

	require.NoError(t, docs.Put(ctx, "doc-1", []byte("v2")))
	data, err = docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	require.NoError(t, docs.Delete(ctx, "doc-1"))
	require.NoError(t, docs.Delete(ctx, "doc-1"))
	_, err = docs.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
