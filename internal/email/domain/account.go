package domain

import "time"

type ProviderKind string

const (
	ProviderGmail   ProviderKind = "gmail"
	ProviderIMAP    ProviderKind = "imap"
	ProviderOutlook ProviderKind = "outlook"
)

// Account is a linked remote mailbox.
type Account struct {
	ID                    string       `json:"id" gorm:"primaryKey"`
	UserID                string       `json:"user_id" gorm:"index;not null"`
	Provider              ProviderKind `json:"provider" gorm:"type:varchar(20);not null"`
	EmailAddress          string       `json:"email_address" gorm:"index;not null"`
	DisplayName           string       `json:"display_name"`
	ServerAddr            string       `json:"server_addr,omitempty"` // IMAP host:port
	EncryptedAccessToken  string       `json:"-" gorm:"type:text"`
	EncryptedRefreshToken string       `json:"-" gorm:"type:text"`
	TokenExpiresAt        *time.Time   `json:"-"`
	IsActive              bool         `json:"is_active" gorm:"not null"`
	SyncEnabled           bool         `json:"sync_enabled" gorm:"not null"`
	LastSyncedAt          *time.Time   `json:"last_synced_at,omitempty"`
	SyncError             *string      `json:"sync_error,omitempty" gorm:"type:text"`
	ModelOverride         *string      `json:"model_override,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (Account) TableName() string {
	return "email_accounts"
}

// Syncable reports whether the periodic trigger should pick this account up.
func (a *Account) Syncable() bool {
	return a.IsActive && a.SyncEnabled
}
