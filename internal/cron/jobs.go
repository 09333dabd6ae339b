package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

const giftOrderExpiryBatch = 200

type giftOrderExpirer interface {
	ExpireUnpaid(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// GiftOrderExpiryJob cancels gift orders that never received a payment within
// the configured TTL.
type GiftOrderExpiryJob struct {
	svc  giftOrderExpirer
	ttl  time.Duration
	logg *logger.Logger
}

func NewGiftOrderExpiryJob(svc giftOrderExpirer, ttl time.Duration, logg *logger.Logger) (*GiftOrderExpiryJob, error) {
	if svc == nil {
		return nil, fmt.Errorf("gift order service required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("payment ttl must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &GiftOrderExpiryJob{svc: svc, ttl: ttl, logg: logg}, nil
}

func (j *GiftOrderExpiryJob) Name() string { return "gift_order_expiry" }

func (j *GiftOrderExpiryJob) Run(ctx context.Context) error {
	expired, err := j.svc.ExpireUnpaid(ctx, j.ttl, giftOrderExpiryBatch)
	if err != nil {
		return err
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{"expired": expired}), "expired unpaid gift orders")
	}
	return nil
}

type notificationPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRetentionJob prunes notifications past the retention window.
type NotificationRetentionJob struct {
	repo      notificationPruner
	retention time.Duration
	logg      *logger.Logger
}

func NewNotificationRetentionJob(repo notificationPruner, retention time.Duration, logg *logger.Logger) (*NotificationRetentionJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &NotificationRetentionJob{repo: repo, retention: retention, logg: logg}, nil
}

func (j *NotificationRetentionJob) Name() string { return "notification_retention" }

func (j *NotificationRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.repo.DeleteOlderThan(ctx, time.Now().Add(-j.retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{"deleted": deleted}), "pruned old notifications")
	}
	return nil
}

type outboxPruner interface {
	DeletePublishedBefore(cutoff time.Time) (int64, error)
}

// OutboxRetentionJob prunes outbox rows that were published long enough ago.
type OutboxRetentionJob struct {
	repo      outboxPruner
	retention time.Duration
	logg      *logger.Logger
}

func NewOutboxRetentionJob(repo outboxPruner, retentionDays int, logg *logger.Logger) (*OutboxRetentionJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &OutboxRetentionJob{repo: repo, retention: time.Duration(retentionDays) * 24 * time.Hour, logg: logg}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox_retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.repo.DeletePublishedBefore(time.Now().Add(-j.retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{"deleted": deleted}), "pruned published outbox events")
	}
	return nil
}
