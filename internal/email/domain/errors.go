package domain

import "errors"

var (
	// ErrCursorInvalid is returned by a provider when the stored sync cursor can no
	// longer be used for an incremental fetch (expired history id, UIDVALIDITY change).
	ErrCursorInvalid = errors.New("sync cursor is no longer valid")

	ErrAccountNotFound     = errors.New("account not found")
	ErrUnsupportedProvider = errors.New("unsupported mail provider")
)
