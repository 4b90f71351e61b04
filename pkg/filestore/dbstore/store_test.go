package dbstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/macrodata/statpipe/pkg/filestore"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&StoredFile{}))
	return db
}

func TestCreateAndFindInFolder(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	ref, err := store.Create(ctx, "folder-a", "Report_LATEST.xlsx", "application/vnd.ms-excel", []byte("content"))
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "Report_LATEST.xlsx", ref.Name)
	assert.Equal(t, "folder-a", ref.Folder)
	assert.Equal(t, int64(7), ref.Size)

	found, err := store.FindInFolder(ctx, "folder-a", "Report_LATEST.xlsx")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ref.ID, found.ID)
}

func TestFindInFolderReturnsNilForMissing(t *testing.T) {
	store := New(setupTestDB(t))

	found, err := store.FindInFolder(context.Background(), "folder-a", "missing.xlsx")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindInFolderScopedToFolder(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, "folder-a", "same.xlsx", "", []byte("a"))
	require.NoError(t, err)

	found, err := store.FindInFolder(ctx, "folder-b", "same.xlsx")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDownloadRoundTrip(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	ref, err := store.Create(ctx, "folder-a", "data.xlsx", "", []byte{0x50, 0x4b, 0x03, 0x04})
	require.NoError(t, err)

	content, err := store.Download(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x4b, 0x03, 0x04}, content)
}

func TestDownloadMissingIsNotFound(t *testing.T) {
	store := New(setupTestDB(t))

	_, err := store.Download(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestUpdateContentReplacesInPlace(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	ref, err := store.Create(ctx, "folder-a", "log.txt", "text/plain", []byte("line one\n"))
	require.NoError(t, err)

	updated, err := store.UpdateContent(ctx, ref.ID, "text/plain", []byte("line one\nline two\n"))
	require.NoError(t, err)
	assert.Equal(t, ref.ID, updated.ID)
	assert.Equal(t, int64(18), updated.Size)

	content, err := store.Download(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(content))
}

func TestMoveRenamesAndReparents(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	ref, err := store.Create(ctx, "main", "Report_LATEST.xlsx", "", []byte("x"))
	require.NoError(t, err)

	moved, err := store.Move(ctx, ref.ID, "Report_2025M06_Edition.xlsx", "main", "archive")
	require.NoError(t, err)
	assert.Equal(t, "Report_2025M06_Edition.xlsx", moved.Name)
	assert.Equal(t, "archive", moved.Folder)

	// Gone from the source folder under either name.
	found, err := store.FindInFolder(ctx, "main", "Report_LATEST.xlsx")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = store.FindInFolder(ctx, "archive", "Report_2025M06_Edition.xlsx")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ref.ID, found.ID)
}

func TestMoveWrongSourceFolderFails(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	ref, err := store.Create(ctx, "main", "a.xlsx", "", []byte("x"))
	require.NoError(t, err)

	_, err = store.Move(ctx, ref.ID, "b.xlsx", "elsewhere", "archive")
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	ref, err := store.Create(ctx, "main", "a.xlsx", "", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref.ID))
	assert.ErrorIs(t, store.Delete(ctx, ref.ID), filestore.ErrNotFound)
}

func TestListReturnsOldestFirst(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"first.xlsx", "second.xlsx", "third.xlsx"} {
		_, err := store.Create(ctx, "main", name, "", []byte("x"))
		require.NoError(t, err)
	}

	refs, err := store.List(ctx, "main", 2)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "first.xlsx", refs[0].Name)
	assert.Equal(t, "second.xlsx", refs[1].Name)
}
