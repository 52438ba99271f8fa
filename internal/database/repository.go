package database

import (
	"time"

	"github.com/actionsum/nudge/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Repository handles all database operations for detections and error logs
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateDetection inserts a detection. Storing the same result twice is a
// no-op.
func (r *Repository) CreateDetection(d *models.Detection) error {
	var existing int64
	if err := r.db.Model(&models.Detection{}).Where("result_id = ?", d.ResultID).Count(&existing).Error; err != nil {
		return errors.Wrap(err, "failed to check detection")
	}
	if existing > 0 {
		return nil
	}

	result := r.db.Create(d)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert detection")
	}
	return nil
}

// GetDetectionByResultID retrieves a detection by the ID of the result it
// was stored from
func (r *Repository) GetDetectionByResultID(resultID string) (*models.Detection, error) {
	var d models.Detection
	result := r.db.Where("result_id = ?", resultID).First(&d)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get detection")
	}
	return &d, nil
}

// GetDetectionsSince retrieves detections since a given time, oldest first
func (r *Repository) GetDetectionsSince(since time.Time) ([]*models.Detection, error) {
	var detections []*models.Detection
	result := r.db.Where("detected_at >= ?", since).Order("detected_at ASC").Find(&detections)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query detections")
	}

	return detections, nil
}

// GetRecentDetections returns up to limit detections, newest first
func (r *Repository) GetRecentDetections(limit int) ([]*models.Detection, error) {
	var detections []*models.Detection
	result := r.db.Order("detected_at DESC").Limit(limit).Find(&detections)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query recent detections")
	}
	return detections, nil
}

// GetDetectionSummarySince aggregates detections by source and theme
// Uses SQL COUNT for efficiency - the reporter orders and totals
func (r *Repository) GetDetectionSummarySince(since time.Time) ([]models.DetectionSummary, error) {
	var summaries []models.DetectionSummary

	result := r.db.Model(&models.Detection{}).
		Select("source, theme, COUNT(*) as count, "+
			"SUM(CASE WHEN confidence = ? THEN 1 ELSE 0 END) as high_count, "+
			"MAX(detected_at) as last_seen_at", string(models.ConfidenceHigh)).
		Where("detected_at >= ?", since).
		Group("source, theme").
		Order("count DESC, theme ASC").
		Scan(&summaries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query detection summary")
	}

	return summaries, nil
}

// GetLatestDetection retrieves the most recent detection, or nil
func (r *Repository) GetLatestDetection() (*models.Detection, error) {
	var d models.Detection
	result := r.db.Order("detected_at DESC").First(&d)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest detection")
	}
	return &d, nil
}

// DeleteOldDetections deletes detections older than a specified date (soft delete)
func (r *Repository) DeleteOldDetections(before time.Time) (int64, error) {
	result := r.db.Where("detected_at < ?", before).Delete(&models.Detection{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old detections")
	}
	return result.RowsAffected, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// LogError records a producer failure. Failures to record are returned, not
// logged again.
func (r *Repository) LogError(component string, cause error) error {
	return r.CreateErrorLog(&models.ErrorLog{
		Timestamp: time.Now(),
		Component: component,
		ErrorMsg:  cause.Error(),
	})
}

// GetErrorLogsSince retrieves error logs since a given time, newest first
func (r *Repository) GetErrorLogsSince(since time.Time) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	result := r.db.Where("timestamp >= ?", since).Order("timestamp DESC").Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all detections and error logs from the database
func (r *Repository) Clear() error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM detections").Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM error_logs").Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to clear detections")
	}
	return nil
}
