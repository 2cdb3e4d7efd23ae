package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// MessageRef is a lightweight pointer to a remote message.
type MessageRef struct {
	NativeID string
	ThreadID string
}

// MessageDetail is the full content of a remote message as returned by a provider.
type MessageDetail struct {
	NativeID       string
	ThreadID       string
	InReplyTo      string
	Subject        string
	Sender         string
	SenderName     string
	Recipients     []string
	Cc             []string
	BodyPlain      string
	BodyHTML       string
	Snippet        string
	HasAttachments bool
	Labels         []string
	IsRead         bool
	IsStarred      bool
	ReceivedAt     *time.Time
}

// MailProvider is an authenticated session against one remote mailbox.
type MailProvider interface {
	// ListNewReferences returns references added since cursor, or the newest limit
	// references of the inbox when cursor is nil. Returns ErrCursorInvalid when the
	// provider rejects the cursor.
	ListNewReferences(ctx context.Context, cursor *CursorMark, limit int) ([]MessageRef, error)
	GetDetail(ctx context.Context, nativeID string) (*MessageDetail, error)
	CurrentCursorMark(ctx context.Context) (CursorMark, error)
	Close() error
}

// TokenUpdateFunc is called when the provider refreshes the OAuth token.
type TokenUpdateFunc func(token *oauth2.Token) error

// ProviderConnector opens provider sessions for a given account kind.
type ProviderConnector interface {
	Connect(ctx context.Context, account *Account, token *oauth2.Token, onRefresh TokenUpdateFunc) (MailProvider, error)
}
