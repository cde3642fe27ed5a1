package repo

import (
	"context"
	"docuvault/internal/common"
	"docuvault/model"
	"errors"

	"gorm.io/gorm"
)

// ObjectRepository persists ObjectRecords for one shard.
type ObjectRepository interface {
	Create(ctx context.Context, rec *model.ObjectRecord) error
	// Get returns common.ErrObjectNotFound when no row exists, deleted rows included.
	Get(ctx context.Context, objectID string) (*model.ObjectRecord, error)
	// MarkWritten records the write outcome; it only applies to Pending rows
	// and reports whether a row was updated.
	MarkWritten(ctx context.Context, objectID string, location *string, status model.WriteStatus) (bool, error)
	// Fix commits a live object to a document.
	Fix(ctx context.Context, objectID string, documentID uint64) error
	MarkDeleted(ctx context.Context, objectIDs []string) error
	ListUnfixed(ctx context.Context, ownerUserID uint64) ([]string, error)
	// ClaimUnfixed tombstones the still-unfixed rows among objectIDs and
	// returns their ids. Rows fixed before the claim are left alone.
	ClaimUnfixed(ctx context.Context, objectIDs []string) ([]string, error)
	// Purge removes unfixed rows.
	Purge(ctx context.Context, objectIDs []string) (int64, error)
}

// GormObjectRepository stores records in MySQL through gorm.
type GormObjectRepository struct {
	db *gorm.DB
}

func NewGormObjectRepository(db *gorm.DB) *GormObjectRepository {
	return &GormObjectRepository{db: db}
}

func (r *GormObjectRepository) Create(ctx context.Context, rec *model.ObjectRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *GormObjectRepository) Get(ctx context.Context, objectID string) (*model.ObjectRecord, error) {
	var rec model.ObjectRecord
	err := r.db.WithContext(ctx).Where("object_id = ?", objectID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormObjectRepository) MarkWritten(ctx context.Context, objectID string, location *string, status model.WriteStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ObjectRecord{}).
		Where("object_id = ? AND write_status = ?", objectID, model.WriteStatusPending).
		Updates(map[string]interface{}{
			"location":     location,
			"write_status": status,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormObjectRepository) Fix(ctx context.Context, objectID string, documentID uint64) error {
	res := r.db.WithContext(ctx).Model(&model.ObjectRecord{}).
		Where("object_id = ? AND write_status <> ?", objectID, model.WriteStatusDeleted).
		Updates(map[string]interface{}{
			"document_id": documentID,
			"fixed":       true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the values were already set.
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ObjectRecord{}).
		Where("object_id = ? AND write_status <> ? AND fixed = ?", objectID, model.WriteStatusDeleted, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return common.ErrObjectNotFound
	}
	return nil
}

func (r *GormObjectRepository) MarkDeleted(ctx context.Context, objectIDs []string) error {
	if len(objectIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.ObjectRecord{}).
		Where("object_id IN ?", objectIDs).
		Update("write_status", model.WriteStatusDeleted).Error
}

func (r *GormObjectRepository) ListUnfixed(ctx context.Context, ownerUserID uint64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.ObjectRecord{}).
		Where("owner_user_id = ? AND fixed = ?", ownerUserID, false).
		Order("id").
		Pluck("object_id", &ids).Error
	return ids, err
}

func (r *GormObjectRepository) ClaimUnfixed(ctx context.Context, objectIDs []string) ([]string, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}
	var claimed []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.ObjectRecord{}).
			Where("object_id IN ? AND fixed = ?", objectIDs, false).
			Update("write_status", model.WriteStatusDeleted).Error; err != nil {
			return err
		}
		// Commit refuses deleted rows, so the unfixed set is stable from here on.
		return tx.Model(&model.ObjectRecord{}).
			Where("object_id IN ? AND fixed = ?", objectIDs, false).
			Order("id").
			Pluck("object_id", &claimed).Error
	})
	return claimed, err
}

func (r *GormObjectRepository) Purge(ctx context.Context, objectIDs []string) (int64, error) {
	if len(objectIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("object_id IN ? AND fixed = ?", objectIDs, false).
		Delete(&model.ObjectRecord{})
	return res.RowsAffected, res.Error
}
