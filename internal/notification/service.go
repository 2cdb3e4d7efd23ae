package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes to the watch topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// AccountFinder resolves the linked accounts for a mailbox address.
type AccountFinder interface {
	FindByAddress(ctx context.Context, provider emaildomain.ProviderKind, address string) ([]emaildomain.Account, error)
}

// SyncSubmitter queues a background sync for an account.
type SyncSubmitter interface {
	Submit(accountID string) bool
}

// Service turns Gmail push notifications into account syncs.
type Service struct {
	pubsubClient *pubsub.Client
	accounts     AccountFinder
	dispatcher   SyncSubmitter
	topicName    string
	subName      string
	logger       *zap.Logger

	mu sync.Mutex
	// last history id seen per account, to drop redelivered or stale notifications
	lastHistoryID map[string]uint64
}

func NewService(ctx context.Context, projectID, topicName, credentialsFile string, accounts AccountFinder, dispatcher SyncSubmitter, logger *zap.Logger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(accounts, dispatcher, topicName, logger)
	s.pubsubClient = client
	return s, nil
}

func newService(accounts AccountFinder, dispatcher SyncSubmitter, topicName string, logger *zap.Logger) *Service {
	return &Service{
		accounts:      accounts,
		dispatcher:    dispatcher,
		topicName:     topicName,
		subName:       topicName + "-sub", // Convention: topic-sub
		logger:        logger.Named("pubsub"),
		lastHistoryID: make(map[string]uint64),
	}
}

// Start ensures the subscription exists and blocks receiving messages until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log := s.logger.With(zap.String("topic", s.topicName), zap.String("subscription", s.subName))
	log.Info("starting notification service")

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check topic: %w", err)
		}
		if !topicExists {
			return fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		log.Info("created subscription")
	}

	log.Info("listening for messages")
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.HandlePayload(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Close releases the Pub/Sub client.
func (s *Service) Close() error {
	if s.pubsubClient == nil {
		return nil
	}
	return s.pubsubClient.Close()
}

// HandlePayload decodes one notification and queues a sync for every matching Gmail
// account. It returns the number of accounts queued.
func (s *Service) HandlePayload(ctx context.Context, data []byte) int {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		s.logger.Warn("failed to decode notification", zap.Error(err))
		return 0
	}
	if notification.EmailAddress == "" {
		s.logger.Warn("notification without email address")
		return 0
	}

	log := s.logger.With(zap.String("email", notification.EmailAddress), zap.Uint64("history_id", notification.HistoryID))

	accounts, err := s.accounts.FindByAddress(ctx, emaildomain.ProviderGmail, notification.EmailAddress)
	if err != nil {
		log.Error("failed to look up accounts", zap.Error(err))
		return 0
	}
	if len(accounts) == 0 {
		log.Debug("no linked account for notification")
		return 0
	}

	queued := 0
	for _, account := range accounts {
		if !account.Syncable() {
			continue
		}
		if !s.markSeen(account.ID, notification.HistoryID) {
			log.Debug("skipping duplicate notification", zap.String("account_id", account.ID))
			continue
		}
		if s.dispatcher.Submit(account.ID) {
			queued++
		}
	}
	return queued
}

func (s *Service) markSeen(accountID string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[accountID]; ok && historyID <= last {
		return false
	}
	s.lastHistoryID[accountID] = historyID
	return true
}
