package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// See https://developers.google.com/gmail/api/reference/quota
	quotaUnitsMessagesGet     = 5
	quotaUnitsPerGetProfile   = 2
	quotaUnitsPerHistoryList  = 2
	quotaUnitsPerMessagesList = 1

	quotaBurst = 250
	user       = "me"

	detailAttempts     = 3
	detailRetryBackoff = 2 * time.Second
)

// Service opens Gmail sessions for linked accounts.
type Service struct {
	clientID       string
	clientSecret   string
	quotaPerSecond float64
	logger         *zap.Logger
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback emaildomain.TokenUpdateFunc
	logger   *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.logger.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, quotaPerSecond float64, logger *zap.Logger) *Service {
	if quotaPerSecond <= 0 {
		quotaPerSecond = 200
	}
	return &Service{
		clientID:       clientID,
		clientSecret:   clientSecret,
		quotaPerSecond: quotaPerSecond,
		logger:         logger.Named("gmail"),
	}
}

// Connect builds an authenticated Gmail client for the account. The token source
// refreshes the access token before expiry and reports new tokens to onRefresh.
func (s *Service) Connect(ctx context.Context, account *emaildomain.Account, token *oauth2.Token, onRefresh emaildomain.TokenUpdateFunc) (emaildomain.MailProvider, error) {
	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	// The token source outlives ctx, so it gets a background context.
	wrapped := &notifyTokenSource{
		src:      config.TokenSource(context.Background(), token),
		current:  token,
		callback: onRefresh,
		logger:   s.logger.With(zap.String("account_id", account.ID)),
	}
	client := oauth2.NewClient(context.Background(), wrapped)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return newSession(srv, s.quotaPerSecond, s.logger.With(zap.String("account_id", account.ID))), nil
}

// session implements emaildomain.MailProvider for one Gmail mailbox.
type session struct {
	srv     *gmail.Service
	limiter *rate.Limiter
	logger  *zap.Logger

	// first wait after a 429; doubled on each further attempt
	retryBackoff time.Duration
}

func newSession(srv *gmail.Service, quotaPerSecond float64, logger *zap.Logger) *session {
	return &session{
		srv:          srv,
		limiter:      rate.NewLimiter(rate.Limit(quotaPerSecond), quotaBurst),
		logger:       logger,
		retryBackoff: detailRetryBackoff,
	}
}

func (s *session) ListNewReferences(ctx context.Context, cursor *emaildomain.CursorMark, limit int) ([]emaildomain.MessageRef, error) {
	if cursor == nil || cursor.HistoryID == 0 {
		return s.listInbox(ctx, limit)
	}
	return s.listHistory(ctx, cursor.HistoryID)
}

func (s *session) listInbox(ctx context.Context, limit int) ([]emaildomain.MessageRef, error) {
	if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesList); err != nil {
		return nil, err
	}
	resp, err := s.srv.Users.Messages.List(user).Q("in:inbox").MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list inbox messages")
	}

	refs := make([]emaildomain.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, emaildomain.MessageRef{NativeID: m.Id, ThreadID: m.ThreadId})
	}
	s.logger.Debug("listed inbox", zap.Int("count", len(refs)))
	return refs, nil
}

func (s *session) listHistory(ctx context.Context, historyID uint64) ([]emaildomain.MessageRef, error) {
	wait := func() error {
		return s.limiter.WaitN(ctx, quotaUnitsPerHistoryList)
	}
	if err := wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var refs []emaildomain.MessageRef
	req := s.srv.Users.History.List(user).HistoryTypes("messageAdded").StartHistoryId(historyID).Context(ctx)
	err := req.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		for _, h := range page.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				refs = append(refs, emaildomain.MessageRef{
					NativeID: added.Message.Id,
					ThreadID: added.Message.ThreadId,
				})
			}
		}
		if page.NextPageToken != "" {
			return wait()
		}
		return nil
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("history %d: %w", historyID, emaildomain.ErrCursorInvalid)
		}
		return nil, errors.Wrap(err, "unable to list history")
	}
	s.logger.Debug("listed history", zap.Uint64("start_history_id", historyID), zap.Int("count", len(refs)))
	return refs, nil
}

// GetDetail retries rate-limited fetches a few times with exponential backoff,
// then gives up so the caller can skip the message.
func (s *session) GetDetail(ctx context.Context, nativeID string) (*emaildomain.MessageDetail, error) {
	backoff := s.retryBackoff
	for attempt := 1; ; attempt++ {
		if err := s.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
			return nil, err
		}
		msg, err := s.srv.Users.Messages.Get(user, nativeID).Format("full").Context(ctx).Do()
		if err == nil {
			return convertMessage(msg), nil
		}
		if !isStatus(err, http.StatusTooManyRequests) || attempt == detailAttempts {
			return nil, errors.Wrapf(err, "getting message %v from gmail", nativeID)
		}

		s.logger.Debug("rate limited, retrying message fetch",
			zap.String("native_id", nativeID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (s *session) CurrentCursorMark(ctx context.Context) (emaildomain.CursorMark, error) {
	if err := s.limiter.WaitN(ctx, quotaUnitsPerGetProfile); err != nil {
		return emaildomain.CursorMark{}, err
	}
	profile, err := s.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return emaildomain.CursorMark{}, errors.Wrap(err, "unable to get profile")
	}
	return emaildomain.CursorMark{HistoryID: profile.HistoryId}, nil
}

func (s *session) Close() error {
	return nil
}

func isStatus(err error, code int) bool {
	apiErr, ok := errors.Cause(err).(*googleapi.Error)
	return ok && apiErr.Code == code
}
