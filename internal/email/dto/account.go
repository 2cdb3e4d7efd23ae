package dto

import "time"

type SyncQueuedResponse struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

type AccountStatusResponse struct {
	AccountID         string     `json:"account_id"`
	Provider          string     `json:"provider"`
	EmailAddress      string     `json:"email_address"`
	SyncEnabled       bool       `json:"sync_enabled"`
	LastSyncedAt      *time.Time `json:"last_synced_at"`
	SyncError         *string    `json:"sync_error"`
	PendingEnrichment int64      `json:"pending_enrichment"`
	Cursor            *Cursor    `json:"cursor,omitempty"`
}

// Cursor mirrors the stored sync cursor; only the fields of the account's provider are set.
type Cursor struct {
	HistoryID   uint64    `json:"history_id,omitempty"`
	DeltaToken  string    `json:"delta_token,omitempty"`
	UIDValidity uint32    `json:"uid_validity,omitempty"`
	UIDNext     uint32    `json:"uid_next,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
