package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

// Service records and serves in-app notifications. Recording is best effort
// from the consumer's point of view; it never reaches back into the flows that
// produced the events.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.Notification, error)
	List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Notification, string, error)
	UnreadCount(ctx context.Context, accountID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, accountID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

// RecordInput is a notification to persist for an account.
type RecordInput struct {
	AccountID uuid.UUID
	Type      enums.NotificationType
	Title     string
	Message   string
	Link      *string
}

// NewService wires a notifications service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.Notification, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", input.Type))
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}

	notification := &models.Notification{
		AccountID: input.AccountID,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		Link:      input.Link,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return notification, nil
}

func (s *service) List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Notification, string, error) {
	if accountID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, accountID, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) UnreadCount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	count, err := s.repo.CountUnread(ctx, accountID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, accountID, id uuid.UUID) error {
	if accountID == uuid.Nil || id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id and notification id required")
	}
	found, err := s.repo.MarkRead(ctx, accountID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	count, err := s.repo.MarkAllRead(ctx, accountID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark all read")
	}
	return count, nil
}
