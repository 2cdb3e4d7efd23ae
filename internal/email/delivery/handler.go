package delivery

import (
	"context"
	"net/http"

	authdelivery "mailcake-backend/internal/auth/delivery"
	emaildomain "mailcake-backend/internal/email/domain"
	emaildto "mailcake-backend/internal/email/dto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AccountReader interface {
	FindByID(ctx context.Context, id string) (*emaildomain.Account, error)
}

type CursorReader interface {
	Get(ctx context.Context, accountID string) (*emaildomain.SyncCursor, error)
}

type UnenrichedCounter interface {
	CountUnenriched(ctx context.Context, accountID string) (int64, error)
}

type SyncSubmitter interface {
	Submit(accountID string) bool
}

type AccountHandler struct {
	accounts   AccountReader
	cursors    CursorReader
	messages   UnenrichedCounter
	dispatcher SyncSubmitter
	logger     *zap.Logger
}

func NewAccountHandler(accounts AccountReader, cursors CursorReader, messages UnenrichedCounter, dispatcher SyncSubmitter, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:   accounts,
		cursors:    cursors,
		messages:   messages,
		dispatcher: dispatcher,
		logger:     logger.Named("http"),
	}
}

// ownedAccount loads the account in the path and checks it belongs to the caller.
// It writes the error response itself and returns nil on failure.
func (h *AccountHandler) ownedAccount(c *gin.Context) *emaildomain.Account {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}

	account, err := h.accounts.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to load account", zap.String("account_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return nil
	}
	// someone else's account is reported as missing
	if account == nil || account.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return nil
	}
	return account
}

// TriggerSync queues a background sync of the account.
func (h *AccountHandler) TriggerSync(c *gin.Context) {
	account := h.ownedAccount(c)
	if account == nil {
		return
	}
	if !account.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "account is inactive"})
		return
	}

	if !h.dispatcher.Submit(account.ID) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync queue is full, try again later"})
		return
	}
	c.JSON(http.StatusAccepted, emaildto.SyncQueuedResponse{AccountID: account.ID, Status: "queued"})
}

func (h *AccountHandler) GetStatus(c *gin.Context) {
	account := h.ownedAccount(c)
	if account == nil {
		return
	}
	ctx := c.Request.Context()

	pending, err := h.messages.CountUnenriched(ctx, account.ID)
	if err != nil {
		h.logger.Error("failed to count pending enrichment", zap.String("account_id", account.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cursor, err := h.cursors.Get(ctx, account.ID)
	if err != nil {
		h.logger.Error("failed to load sync cursor", zap.String("account_id", account.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := emaildto.AccountStatusResponse{
		AccountID:         account.ID,
		Provider:          string(account.Provider),
		EmailAddress:      account.EmailAddress,
		SyncEnabled:       account.SyncEnabled,
		LastSyncedAt:      account.LastSyncedAt,
		SyncError:         account.SyncError,
		PendingEnrichment: pending,
	}
	if cursor != nil {
		mark := cursor.Mark()
		resp.Cursor = &emaildto.Cursor{
			HistoryID:   mark.HistoryID,
			DeltaToken:  mark.DeltaToken,
			UIDValidity: mark.UIDValidity,
			UIDNext:     mark.UIDNext,
			UpdatedAt:   cursor.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}
