package blob

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	keyRe := regexp.MustCompile(`^books/rich-dad-poor-dad-[0-9a-z]{12}\.pdf$`)

	k1, err := NewKey("books/Rich Dad, Poor Dad.PDF")
	require.NoError(t, err)
	k2, err := NewKey("books/Rich Dad, Poor Dad.PDF")
	require.NoError(t, err)

	assert.Regexp(t, keyRe, k1)
	assert.NotEqual(t, k1, k2)
}

func TestNewKey_Sanitizes(t *testing.T) {
	k, err := NewKey("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, validKey(k), "key %q should be valid", k)
	assert.Regexp(t, `^etc/passwd-[0-9a-z]{12}$`, k)

	k, err = NewKey("covers/???.png")
	require.NoError(t, err)
	assert.Regexp(t, `^covers/file-[0-9a-z]{12}\.png$`, k)
}

func TestValidKey(t *testing.T) {
	assert.True(t, validKey("books/a.pdf"))
	assert.False(t, validKey(""))
	assert.False(t, validKey("/abs"))
	assert.False(t, validKey("books/../x"))
	assert.False(t, validKey("books//x"))
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	disk, err := Open(Options{Backend: BackendDisk, Path: filepath.Join(dir, "disk"), BaseURL: "/blobs/"})
	require.NoError(t, err)
	bolt, err := Open(Options{Backend: BackendBolt, Path: filepath.Join(dir, "blobs.db"), BaseURL: "/blobs"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = disk.Close()
		_ = bolt.Close()
	})
	return map[string]Store{"disk": disk, "bolt": bolt}
}

func TestStores_PutGetDelete(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%fake body\n")

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			obj, err := store.Put(ctx, "books/My Book.pdf", pdf, "")
			require.NoError(t, err)
			assert.Equal(t, "/blobs/"+obj.Key, obj.URL)
			assert.Equal(t, "application/pdf", obj.ContentType)
			assert.Equal(t, int64(len(pdf)), obj.Size)

			data, ct, err := store.Get(ctx, obj.Key)
			require.NoError(t, err)
			assert.Equal(t, pdf, data)
			assert.Equal(t, "application/pdf", ct)

			require.NoError(t, store.Delete(ctx, obj.Key))
			_, _, err = store.Get(ctx, obj.Key)
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.True(t, errors.Is(store.Delete(ctx, obj.Key), ErrNotFound))
		})
	}
}

func TestStores_ExplicitContentType(t *testing.T) {
	store := openStores(t)["bolt"]
	obj, err := store.Put(context.Background(), "covers/x.bin", []byte{1, 2, 3}, "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", obj.ContentType)

	_, ct, err := store.Get(context.Background(), obj.Key)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", ct)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "s3"})
	assert.Error(t, err)
}
