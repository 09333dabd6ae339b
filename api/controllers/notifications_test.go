package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/api/middleware"
	"github.com/giftmarket/giftmarket-backend/internal/notifications"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, name, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(name, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func withAccount(req *http.Request, accountID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithAccountID(req.Context(), accountID.String()))
}

type testNotificationsService struct {
	recordFn      func(ctx context.Context, input notifications.RecordInput) (*models.Notification, error)
	listFn        func(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Notification, string, error)
	unreadFn      func(ctx context.Context, accountID uuid.UUID) (int64, error)
	markReadFn    func(ctx context.Context, accountID, id uuid.UUID) error
	markAllReadFn func(ctx context.Context, accountID uuid.UUID) (int64, error)
}

func (s *testNotificationsService) Record(ctx context.Context, input notifications.RecordInput) (*models.Notification, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, input)
	}
	return nil, nil
}

func (s *testNotificationsService) List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Notification, string, error) {
	if s.listFn != nil {
		return s.listFn(ctx, accountID, params)
	}
	return nil, "", nil
}

func (s *testNotificationsService) UnreadCount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if s.unreadFn != nil {
		return s.unreadFn(ctx, accountID)
	}
	return 0, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, accountID, id uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, accountID, id)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, accountID)
	}
	return 0, nil
}

func TestNotificationMarkReadSuccess(t *testing.T) {
	accountID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, aid, nid uuid.UUID) error {
			called = true
			if aid != accountID {
				t.Fatalf("unexpected account %s", aid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", nil)
	req = withAccount(req, accountID)
	req = addRouteParam(req, "notificationId", notificationID.String())

	resp := httptest.NewRecorder()
	NotificationMarkRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["status"] != "read" {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestNotificationMarkReadMissingAccount(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", nil)
	req = addRouteParam(req, "notificationId", uuid.NewString())
	resp := httptest.NewRecorder()
	NotificationMarkRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestNotificationMarkReadInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/invalid/read", nil)
	req = withAccount(req, uuid.New())
	req = addRouteParam(req, "notificationId", "invalid")
	resp := httptest.NewRecorder()
	NotificationMarkRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestNotificationListIncludesUnreadCount(t *testing.T) {
	accountID := uuid.New()
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, aid uuid.UUID, params pagination.Params) ([]models.Notification, string, error) {
			if params.Limit != pagination.DefaultLimit {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return []models.Notification{{ID: uuid.New(), AccountID: aid}}, "next-token", nil
		},
		unreadFn: func(ctx context.Context, aid uuid.UUID) (int64, error) {
			return 3, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req = withAccount(req, accountID)
	resp := httptest.NewRecorder()
	NotificationList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Notifications []models.Notification `json:"notifications"`
			UnreadCount   int64                 `json:"unread_count"`
			NextCursor    string                `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(envelope.Data.Notifications))
	}
	if envelope.Data.UnreadCount != 3 {
		t.Fatalf("unexpected unread count %d", envelope.Data.UnreadCount)
	}
	if envelope.Data.NextCursor != "next-token" {
		t.Fatalf("unexpected cursor %q", envelope.Data.NextCursor)
	}
}

func TestNotificationMarkAllRead(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, aid uuid.UUID) (int64, error) {
			return 4, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil)
	req = withAccount(req, uuid.New())
	resp := httptest.NewRecorder()
	NotificationMarkAllRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["marked_read"] != 4 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
