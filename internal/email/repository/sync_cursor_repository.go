package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncCursorRepository defines the interface for per-account sync cursors
type SyncCursorRepository interface {
	Get(ctx context.Context, accountID string) (*emaildomain.SyncCursor, error)
	// Advance stores mark for the account. Unless reset is set, a mark that would move
	// the cursor backwards is ignored and Advance reports false.
	Advance(ctx context.Context, accountID string, mark emaildomain.CursorMark, reset bool) (bool, error)
}

// syncCursorRepository implements SyncCursorRepository interface
type syncCursorRepository struct {
	db *gorm.DB
}

// NewSyncCursorRepository creates a new instance of syncCursorRepository
func NewSyncCursorRepository(db *gorm.DB) SyncCursorRepository {
	return &syncCursorRepository{
		db: db,
	}
}

func (r *syncCursorRepository) Get(ctx context.Context, accountID string) (*emaildomain.SyncCursor, error) {
	var cursor emaildomain.SyncCursor
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

func (r *syncCursorRepository) Advance(ctx context.Context, accountID string, mark emaildomain.CursorMark, reset bool) (bool, error) {
	if mark.IsZero() {
		return false, nil
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current emaildomain.SyncCursor
		err := tx.Where("account_id = ?", accountID).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = emaildomain.SyncCursor{AccountID: accountID}
		case err != nil:
			return err
		default:
			if !reset && mark.Regresses(current.Mark()) {
				return nil
			}
		}

		current.Apply(mark)
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_history_id", "last_delta_token", "last_uid_validity", "last_uid_next", "updated_at"}),
		}).Create(&current).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
