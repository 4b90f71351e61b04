package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunRecord persists one run outcome so history survives restarts.
type RunRecord struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Pipeline     string    `gorm:"column:pipeline;index"`
	Status       string    `gorm:"column:status;index"`
	Reason       string    `gorm:"column:reason"`
	Message      string    `gorm:"column:message"`
	VersionType  string    `gorm:"column:version_type"`
	VersionValue string    `gorm:"column:version_value"`
	Filename     string    `gorm:"column:filename"`
	FileID       string    `gorm:"column:file_id"`
	WebLink      string    `gorm:"column:web_link"`
	FolderID     string    `gorm:"column:folder_id"`
	Variables    int       `gorm:"column:n_variables"`
	Observations int       `gorm:"column:n_observations"`
	PeriodRange  string    `gorm:"column:period_range"`
	Sector       string    `gorm:"column:sector"`
	DurationMs   int64     `gorm:"column:duration_ms"`
	StartedAt    time.Time `gorm:"column:started_at;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default table name.
func (RunRecord) TableName() string {
	return "pipeline_runs"
}

// RunStore provides database operations for run history.
type RunStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRunStore creates a RunStore.
func NewRunStore(db *gorm.DB, logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{db: db, logger: logger}
}

// AutoMigrate creates or updates the pipeline_runs table.
func (s *RunStore) AutoMigrate() error {
	return s.db.AutoMigrate(&RunRecord{})
}

// Save persists a run outcome. Failures are logged, not returned:
// history is a secondary record and must never fail a run.
func (s *RunStore) Save(pipeline string, out Outcome, startedAt time.Time, duration time.Duration) {
	rec := RunRecord{
		ID:           uuid.NewString(),
		Pipeline:     pipeline,
		Status:       out.Status,
		Reason:       out.Reason,
		Message:      out.Message,
		VersionType:  out.VersionType,
		VersionValue: out.VersionValue,
		Filename:     out.Filename,
		FileID:       out.FileID,
		WebLink:      out.WebLink,
		FolderID:     out.FolderID,
		Variables:    out.Variables,
		Observations: out.Observations,
		PeriodRange:  out.PeriodRange,
		Sector:       out.Sector,
		DurationMs:   duration.Milliseconds(),
		StartedAt:    startedAt,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.logger.Error("failed to save run record", "pipeline", pipeline, "error", err)
	}
}

// Get retrieves a run record by id. Returns nil when not found.
func (s *RunStore) Get(id string) (*RunRecord, error) {
	var rec RunRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get run record: %w", err)
	}
	return &rec, nil
}

// RunListFilter defines filters for listing run history.
type RunListFilter struct {
	Pipeline string
	Status   string
}

// List returns paginated run records matching the filter, newest first.
func (s *RunStore) List(filter RunListFilter, pageSize int, pageToken string) ([]RunRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&RunRecord{})
		if filter.Pipeline != "" {
			q = q.Where("pipeline = ?", filter.Pipeline)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count run records: %w", err)
	}

	query := buildQuery(s.db).Order("started_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("started_at < ?", t)
	}

	var records []RunRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list run records: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].StartedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}
