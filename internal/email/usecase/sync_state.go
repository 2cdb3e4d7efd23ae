package usecase

import emaildomain "mailcake-backend/internal/email/domain"

type FetchMode string

const (
	FetchBootstrap   FetchMode = "bootstrap"
	FetchIncremental FetchMode = "incremental"
	// FetchInvalidated is a bootstrap forced by the provider rejecting the cursor.
	FetchInvalidated FetchMode = "invalidated"
)

// FetchPlan says how the next listing call is made.
type FetchPlan struct {
	Mode   FetchMode
	Cursor *emaildomain.CursorMark
	Limit  int
}

// Resets reports whether the cursor written after this fetch replaces the stored one
// regardless of ordering.
func (p FetchPlan) Resets() bool {
	return p.Mode != FetchIncremental
}

// PlanFetch chooses bootstrap when no usable cursor is stored, incremental otherwise.
func PlanFetch(cursor *emaildomain.SyncCursor, bootstrapLimit int) FetchPlan {
	mark := cursor.Mark()
	if mark.IsZero() {
		return FetchPlan{Mode: FetchBootstrap, Limit: bootstrapLimit}
	}
	return FetchPlan{Mode: FetchIncremental, Cursor: &mark, Limit: bootstrapLimit}
}

// Invalidate turns a rejected incremental plan into a bootstrap.
func (p FetchPlan) Invalidate() FetchPlan {
	return FetchPlan{Mode: FetchInvalidated, Limit: p.Limit}
}
