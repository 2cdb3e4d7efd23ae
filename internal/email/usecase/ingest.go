package usecase

import (
	"context"
	"fmt"

	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/internal/email/repository"

	"go.uber.org/zap"
)

// Ingester stores newly listed messages exactly once per (account, provider message id).
type Ingester struct {
	messages repository.MessageRepository
	logger   *zap.Logger
}

func NewIngester(messages repository.MessageRepository, logger *zap.Logger) *Ingester {
	return &Ingester{messages: messages, logger: logger.Named("ingest")}
}

// Ingest fetches and stores each reference in order and returns the ids of the rows it
// created. A reference that fails to fetch or store is logged and skipped. Only a
// cancelled context stops the loop early.
func (i *Ingester) Ingest(ctx context.Context, account *emaildomain.Account, workspaceID *string, provider emaildomain.MailProvider, refs []emaildomain.MessageRef) ([]string, error) {
	log := i.logger.With(zap.String("account_id", account.ID))
	newIDs := make([]string, 0, len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return newIDs, err
		}

		exists, err := i.messages.Exists(ctx, account.ID, ref.NativeID)
		if err != nil {
			log.Warn("existence check failed", zap.String("provider_message_id", ref.NativeID), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		detail, err := provider.GetDetail(ctx, ref.NativeID)
		if err != nil {
			log.Warn("failed to fetch message", zap.String("provider_message_id", ref.NativeID), zap.Error(err))
			continue
		}

		msg, err := i.buildMessage(ctx, account, workspaceID, ref, detail)
		if err != nil {
			log.Warn("failed to prepare message", zap.String("provider_message_id", ref.NativeID), zap.Error(err))
			continue
		}

		created, err := i.messages.Create(ctx, msg)
		if err != nil {
			log.Warn("failed to store message", zap.String("provider_message_id", ref.NativeID), zap.Error(err))
			continue
		}
		if created {
			newIDs = append(newIDs, msg.ID)
		}
	}

	log.Info("ingested messages", zap.Int("listed", len(refs)), zap.Int("new", len(newIDs)))
	return newIDs, nil
}

func (i *Ingester) buildMessage(ctx context.Context, account *emaildomain.Account, workspaceID *string, ref emaildomain.MessageRef, d *emaildomain.MessageDetail) (*emaildomain.Message, error) {
	threadID := d.ThreadID
	if threadID == "" {
		threadID = ref.ThreadID
	}

	position := 1
	if threadID != "" {
		count, err := i.messages.CountInThread(ctx, account.ID, threadID)
		if err != nil {
			return nil, fmt.Errorf("count thread %s: %w", threadID, err)
		}
		position = int(count) + 1
	}

	return &emaildomain.Message{
		AccountID:         account.ID,
		ProviderMessageID: ref.NativeID,
		ThreadID:          threadID,
		PositionInThread:  position,
		InReplyTo:         d.InReplyTo,
		Subject:           d.Subject,
		Sender:            d.Sender,
		SenderName:        d.SenderName,
		Recipients:        emaildomain.StringArray(d.Recipients),
		Cc:                emaildomain.StringArray(d.Cc),
		BodyPlain:         d.BodyPlain,
		BodyHTML:          d.BodyHTML,
		Snippet:           d.Snippet,
		HasAttachments:    d.HasAttachments,
		Labels:            emaildomain.StringArray(d.Labels),
		IsRead:            d.IsRead,
		IsStarred:         d.IsStarred,
		WorkspaceID:       workspaceID,
		ReceivedAt:        d.ReceivedAt,
	}, nil
}

// SelectUnenriched returns up to limit ids of the account's messages that have no
// enrichment result, newest first.
func (i *Ingester) SelectUnenriched(ctx context.Context, accountID string, limit int) ([]string, error) {
	ids, err := i.messages.SelectUnenriched(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("select unenriched for %s: %w", accountID, err)
	}
	return ids, nil
}
