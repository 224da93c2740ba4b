package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickeats/gorest/models"
)

func TestDiskStoreSave(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)

	ref, err := s.Save(context.Background(), "Masala Dosa.JPG", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/uploads/"))
	assert.True(t, strings.HasSuffix(ref, "-masala-dosa.jpg"))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(ref, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestDiskStoreRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Save(ctx, "poha.png", strings.NewReader("png"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, ref))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, s.Remove(ctx, ref))
	for _, bad := range []string{"poha.png", "/uploads/", "/uploads/../go.mod", "/elsewhere/x.png"} {
		assert.ErrorIs(t, s.Remove(ctx, bad), models.ErrValidation, bad)
	}
}

func TestDiskStoreRejects(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	s.MaxBytes = 4

	_, err = s.Save(context.Background(), "menu.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = s.Save(context.Background(), "big.png", strings.NewReader("too large"))
	assert.ErrorIs(t, err, models.ErrValidation)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "paneer-tikka", sanitize("Paneer Tikka"))
	assert.Equal(t, "image", sanitize("***"))
	assert.Equal(t, "a-b", sanitize("a.b"))
}
