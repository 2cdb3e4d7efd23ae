package repository

import (
	"context"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"
)

// AccountRepository defines the interface for linked mailbox operations
type AccountRepository interface {
	Create(ctx context.Context, account *emaildomain.Account) error
	FindByID(ctx context.Context, id string) (*emaildomain.Account, error)
	// FindByAddress returns the active accounts of a provider bound to an address
	FindByAddress(ctx context.Context, provider emaildomain.ProviderKind, address string) ([]emaildomain.Account, error)
	// ListSyncable returns accounts that are active and have sync enabled
	ListSyncable(ctx context.Context) ([]emaildomain.Account, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkSyncError(ctx context.Context, id string, message string) error
	UpdateTokens(ctx context.Context, id, encryptedAccess, encryptedRefresh string, expiresAt *time.Time) error
}
