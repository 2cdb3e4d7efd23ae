package imap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"
	"mailcake-backend/pkg/mailparse"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	inbox       = "INBOX"
	dialTimeout = 30 * time.Second
)

// Service opens IMAP sessions. The account's access token is used as the password.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger.Named("imap")}
}

func (s *Service) Connect(ctx context.Context, account *emaildomain.Account, token *oauth2.Token, _ emaildomain.TokenUpdateFunc) (emaildomain.MailProvider, error) {
	if account.ServerAddr == "" {
		return nil, fmt.Errorf("imap account %s has no server address", account.ID)
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	c, err := client.DialWithDialerTLS(dialer, account.ServerAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", account.ServerAddr, err)
	}
	c.Timeout = dialTimeout

	if err := c.Login(account.EmailAddress, token.AccessToken); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	return &session{
		c:      c,
		logger: s.logger.With(zap.String("account_id", account.ID)),
	}, nil
}

// session implements emaildomain.MailProvider over one IMAP connection.
type session struct {
	c      *client.Client
	logger *zap.Logger
}

func (s *session) selectInbox() (*imap.MailboxStatus, error) {
	status, err := s.c.Select(inbox, true)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", inbox, err)
	}
	return status, nil
}

func (s *session) ListNewReferences(ctx context.Context, cursor *emaildomain.CursorMark, limit int) ([]emaildomain.MessageRef, error) {
	status, err := s.selectInbox()
	if err != nil {
		return nil, err
	}

	if err := checkValidity(cursor, status.UidValidity); err != nil {
		return nil, err
	}
	incremental := cursor != nil && cursor.UIDValidity != 0

	criteria := imap.NewSearchCriteria()
	if incremental {
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(cursor.UIDNext, 0)
	}

	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	uids = selectUIDs(uids, cursor, limit)

	refs := make([]emaildomain.MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, emaildomain.MessageRef{NativeID: formatNativeID(status.UidValidity, uid)})
	}
	s.logger.Debug("listed inbox uids", zap.Int("count", len(refs)))
	return refs, nil
}

func (s *session) GetDetail(ctx context.Context, nativeID string) (*emaildomain.MessageDetail, error) {
	validity, uid, err := parseNativeID(nativeID)
	if err != nil {
		return nil, err
	}
	status, err := s.selectInbox()
	if err != nil {
		return nil, err
	}
	if status.UidValidity != validity {
		return nil, fmt.Errorf("message %s: %w", nativeID, emaildomain.ErrCursorInvalid)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, items, messages)
	}()

	var fetched *imap.Message
	for m := range messages {
		fetched = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch %d: %w", uid, err)
	}
	if fetched == nil {
		return nil, fmt.Errorf("message %s not found", nativeID)
	}

	literal := fetched.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("message %s has no body", nativeID)
	}
	body, err := mailparse.ReadBody(literal)
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", nativeID, err)
	}
	return buildDetail(nativeID, fetched.Flags, fetched.InternalDate, body), nil
}

func (s *session) CurrentCursorMark(ctx context.Context) (emaildomain.CursorMark, error) {
	status, err := s.selectInbox()
	if err != nil {
		return emaildomain.CursorMark{}, err
	}
	return emaildomain.CursorMark{UIDValidity: status.UidValidity, UIDNext: status.UidNext}, nil
}

func (s *session) Close() error {
	return s.c.Logout()
}

func buildDetail(nativeID string, flags []string, internalDate time.Time, body *mailparse.Body) *emaildomain.MessageDetail {
	h := body.Header
	detail := &emaildomain.MessageDetail{
		NativeID:       nativeID,
		ThreadID:       mailparse.ThreadKey(h),
		InReplyTo:      mailparse.InReplyTo(h),
		Subject:        mailparse.Subject(h),
		Recipients:     mailparse.Addresses(h, "To"),
		Cc:             mailparse.Addresses(h, "Cc"),
		BodyPlain:      body.Plain,
		BodyHTML:       body.HTML,
		Snippet:        mailparse.Snippet(body.Plain),
		HasAttachments: body.HasAttachments,
		Labels:         append([]string{inbox}, flags...),
		IsRead:         hasFlag(flags, imap.SeenFlag),
		IsStarred:      hasFlag(flags, imap.FlaggedFlag),
		ReceivedAt:     mailparse.ReceivedAt(h, internalDate),
	}
	detail.Sender, detail.SenderName = mailparse.Sender(h)
	return detail
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

func checkValidity(cursor *emaildomain.CursorMark, current uint32) error {
	if cursor == nil || cursor.UIDValidity == 0 || cursor.UIDValidity == current {
		return nil
	}
	return fmt.Errorf("uidvalidity %d -> %d: %w", cursor.UIDValidity, current, emaildomain.ErrCursorInvalid)
}

// selectUIDs orders search results and keeps the ones to fetch: everything from
// the cursor's UIDNEXT on, or the newest limit messages when there is no cursor.
func selectUIDs(uids []uint32, cursor *emaildomain.CursorMark, limit int) []uint32 {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if cursor != nil && cursor.UIDValidity != 0 {
		// "n:*" always matches the highest UID, even when it is below n
		filtered := sorted[:0]
		for _, uid := range sorted {
			if uid >= cursor.UIDNext {
				filtered = append(filtered, uid)
			}
		}
		return filtered
	}
	if limit > 0 && len(sorted) > limit {
		return sorted[len(sorted)-limit:]
	}
	return sorted
}

// UIDs are only unique under one UIDVALIDITY, so both are part of the id.
func formatNativeID(validity, uid uint32) string {
	return strconv.FormatUint(uint64(validity), 10) + ":" + strconv.FormatUint(uint64(uid), 10)
}

func parseNativeID(id string) (uint32, uint32, error) {
	v, u, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed imap message id %q", id)
	}
	validity, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed imap message id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(u, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, fmt.Errorf("malformed imap message id %q", id)
	}
	return uint32(validity), uint32(uid), nil
}
