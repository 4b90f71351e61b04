// Package dbstore implements filestore.Store on top of a database table.
// It backs local and test deployments where no external Drive is available,
// and doubles as the fixture store for pipeline tests.
package dbstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/macrodata/statpipe/pkg/filestore"
)

// StoredFile is the GORM model for a file row. A folder is just a string
// key; folder ids are opaque to the publisher either way.
type StoredFile struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	FolderID    string    `gorm:"column:folder_id;index:idx_file_folder_name,priority:1;not null"`
	Name        string    `gorm:"column:name;index:idx_file_folder_name,priority:2;not null"`
	ContentType string    `gorm:"column:content_type"`
	Content     []byte    `gorm:"column:content"`
	Size        int64     `gorm:"column:size"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (StoredFile) TableName() string { return "stored_files" }

// Store implements filestore.Store against a GORM database.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the stored_files table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&StoredFile{})
}

// FindInFolder returns the oldest file with the given name in the folder,
// or nil if none exists. Oldest-first keeps the answer stable should
// duplicates ever appear.
func (s *Store) FindInFolder(ctx context.Context, folderID, name string) (*filestore.FileRef, error) {
	var row StoredFile
	err := s.db.WithContext(ctx).
		Where("folder_id = ? AND name = ?", folderID, name).
		Order("created_at ASC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find file %q in folder %q: %w", name, folderID, err)
	}
	return rowToRef(&row), nil
}

// Download returns the complete content of the file.
func (s *Store) Download(ctx context.Context, fileID string) ([]byte, error) {
	var row StoredFile
	if err := s.db.WithContext(ctx).First(&row, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("download %q: %w", fileID, filestore.ErrNotFound)
		}
		return nil, fmt.Errorf("download %q: %w", fileID, err)
	}
	return row.Content, nil
}

// Create uploads content as a new file in the folder.
func (s *Store) Create(ctx context.Context, folderID, name, contentType string, content []byte) (*filestore.FileRef, error) {
	row := StoredFile{
		ID:          uuid.NewString(),
		FolderID:    folderID,
		Name:        name,
		ContentType: contentType,
		Content:     content,
		Size:        int64(len(content)),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create file %q in folder %q: %w", name, folderID, err)
	}
	return rowToRef(&row), nil
}

// UpdateContent replaces the content of an existing file in place.
func (s *Store) UpdateContent(ctx context.Context, fileID, contentType string, content []byte) (*filestore.FileRef, error) {
	result := s.db.WithContext(ctx).Model(&StoredFile{}).Where("id = ?", fileID).
		Updates(map[string]any{
			"content":      content,
			"content_type": contentType,
			"size":         int64(len(content)),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("update file %q: %w", fileID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("update file %q: %w", fileID, filestore.ErrNotFound)
	}
	return s.get(ctx, fileID)
}

// Move renames and reparents the file in a single update, so a reader never
// sees the renamed file still in the old folder or vice versa.
func (s *Store) Move(ctx context.Context, fileID, newName, fromFolderID, toFolderID string) (*filestore.FileRef, error) {
	result := s.db.WithContext(ctx).Model(&StoredFile{}).
		Where("id = ? AND folder_id = ?", fileID, fromFolderID).
		Updates(map[string]any{
			"name":      newName,
			"folder_id": toFolderID,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("move file %q: %w", fileID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("move file %q from folder %q: %w", fileID, fromFolderID, filestore.ErrNotFound)
	}
	return s.get(ctx, fileID)
}

// Delete removes the file.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	result := s.db.WithContext(ctx).Delete(&StoredFile{}, "id = ?", fileID)
	if result.Error != nil {
		return fmt.Errorf("delete file %q: %w", fileID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delete file %q: %w", fileID, filestore.ErrNotFound)
	}
	return nil
}

// List returns up to limit files in the folder, oldest first.
func (s *Store) List(ctx context.Context, folderID string, limit int) ([]filestore.FileRef, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []StoredFile
	err := s.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", folderID, err)
	}
	refs := make([]filestore.FileRef, len(rows))
	for i := range rows {
		refs[i] = *rowToRef(&rows[i])
	}
	return refs, nil
}

func (s *Store) get(ctx context.Context, fileID string) (*filestore.FileRef, error) {
	var row StoredFile
	if err := s.db.WithContext(ctx).First(&row, "id = ?", fileID).Error; err != nil {
		return nil, fmt.Errorf("reload file %q: %w", fileID, err)
	}
	return rowToRef(&row), nil
}

func rowToRef(row *StoredFile) *filestore.FileRef {
	return &filestore.FileRef{
		ID:       row.ID,
		Name:     row.Name,
		Folder:   row.FolderID,
		Size:     row.Size,
		Modified: row.UpdatedAt,
	}
}

// Compile-time interface check.
var _ filestore.Store = (*Store)(nil)
