package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *emaildomain.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*emaildomain.Account, error) {
	var account emaildomain.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByAddress(ctx context.Context, provider emaildomain.ProviderKind, address string) ([]emaildomain.Account, error) {
	var accounts []emaildomain.Account
	err := r.db.WithContext(ctx).
		Where("provider = ? AND LOWER(email_address) = LOWER(?) AND is_active = ?", provider, address, true).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) ListSyncable(ctx context.Context) ([]emaildomain.Account, error) {
	var accounts []emaildomain.Account
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND sync_enabled = ?", true, true).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// MarkSynced records a successful cycle and clears any previous error
func (r *accountRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&emaildomain.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_synced_at": at.UTC(),
			"sync_error":     nil,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *accountRepository) MarkSyncError(ctx context.Context, id string, message string) error {
	return r.db.WithContext(ctx).Model(&emaildomain.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_error": message,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *accountRepository) UpdateTokens(ctx context.Context, id, encryptedAccess, encryptedRefresh string, expiresAt *time.Time) error {
	updates := map[string]interface{}{
		"encrypted_access_token": encryptedAccess,
		"token_expires_at":       expiresAt,
		"updated_at":             time.Now().UTC(),
	}
	// providers do not always return a new refresh token
	if encryptedRefresh != "" {
		updates["encrypted_refresh_token"] = encryptedRefresh
	}
	return r.db.WithContext(ctx).Model(&emaildomain.Account{}).Where("id = ?", id).Updates(updates).Error
}
