package storage_test

import (
	"bytes"
	"context"
	"guardpost/models"
	"guardpost/storage"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskPhotoStore_Put(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewDiskPhotoStore(root)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), storage.Upload{
		GuardID:     "guard-1",
		ShiftID:     "shift-1",
		Slot:        models.SlotCheckIn,
		ContentType: "image/png",
		Body:        strings.NewReader("png bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), ref.Size)
	assert.Equal(t, "image/png", ref.MimeType)
	assert.True(t, strings.HasPrefix(ref.Path, "shifts/guard-1/shift-1/checkInPhoto-"))
	assert.True(t, strings.HasSuffix(ref.Path, ".png"))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(ref.Path)))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
}

func TestDiskPhotoStore_Rejects(t *testing.T) {
	store, err := storage.NewDiskPhotoStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), storage.Upload{
		GuardID: "guard-1", ShiftID: "shift-1", Slot: models.SlotCheckOut,
		ContentType: "image/gif", Body: strings.NewReader("gif"),
	})
	assert.ErrorIs(t, err, storage.ErrUnsupportedType)

	_, err = store.Put(context.Background(), storage.Upload{
		GuardID: "guard-1", ShiftID: "shift-1", Slot: models.SlotCheckOut,
		ContentType: "image/jpeg", Body: bytes.NewReader(make([]byte, storage.MaxPhotoBytes+1)),
	})
	assert.ErrorIs(t, err, storage.ErrTooLarge)
}
