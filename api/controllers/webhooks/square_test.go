package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/internal/deposits"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

const testSecret = "webhook-secret"

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("gm:idempotency:%s:%s", scope, id)
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

type stubDeposits struct {
	inputs []deposits.Input
	err    error
}

func (s *stubDeposits) Deposit(_ context.Context, input deposits.Input) (*deposits.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, input)
	return &deposits.Result{Transaction: &models.Transaction{ID: uuid.New()}}, nil
}

type stubSquare struct{}

func (stubSquare) SigningSecret() string { return testSecret }

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func paymentPayload(eventID, paymentID string, accountID uuid.UUID, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"event_id": %q,
		"type": "payment.updated",
		"data": {"id": %q, "object": {"payment": {"id": %q, "status": %q, "reference_id": %q}}}
	}`, eventID, eventID, paymentID, status, accountID))
}

func newTestHandler(t *testing.T, svc depositService) http.HandlerFunc {
	t.Helper()
	guard, err := NewGuard(newMemoryStore())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return SquareWebhook(svc, stubSquare{}, guard, logg)
}

func deliver(handler http.HandlerFunc, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Square-Signature", signature)
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	return resp
}

func TestSquareWebhookCreditsCompletedPayment(t *testing.T) {
	accountID := uuid.New()
	svc := &stubDeposits{}
	handler := newTestHandler(t, svc)

	payload := paymentPayload(uuid.NewString(), "pay_123", accountID, "COMPLETED")
	resp := deliver(handler, payload, sign(payload))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.inputs) != 1 {
		t.Fatalf("expected one deposit, got %d", len(svc.inputs))
	}
	if svc.inputs[0].AccountID != accountID {
		t.Fatalf("wrong account %s", svc.inputs[0].AccountID)
	}
	if svc.inputs[0].ProviderRef != "pay_123" {
		t.Fatalf("wrong provider ref %q", svc.inputs[0].ProviderRef)
	}
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubDeposits{}
	handler := newTestHandler(t, svc)

	payload := paymentPayload(uuid.NewString(), "pay_123", uuid.New(), "COMPLETED")
	resp := deliver(handler, payload, "deadbeef")

	if resp.Code == http.StatusOK {
		t.Fatal("expected rejection")
	}
	if len(svc.inputs) != 0 {
		t.Fatal("deposit must not run on a bad signature")
	}
}

func TestSquareWebhookRejectsMissingSignature(t *testing.T) {
	svc := &stubDeposits{}
	handler := newTestHandler(t, svc)

	payload := paymentPayload(uuid.NewString(), "pay_123", uuid.New(), "COMPLETED")
	resp := deliver(handler, payload, "")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSquareWebhookDeduplicatesDeliveries(t *testing.T) {
	svc := &stubDeposits{}
	handler := newTestHandler(t, svc)

	payload := paymentPayload(uuid.NewString(), "pay_123", uuid.New(), "COMPLETED")
	signature := sign(payload)
	for i := 0; i < 3; i++ {
		resp := deliver(handler, payload, signature)
		if resp.Code != http.StatusOK {
			t.Fatalf("delivery %d: unexpected status %d", i, resp.Code)
		}
	}

	if len(svc.inputs) != 1 {
		t.Fatalf("expected one deposit across redeliveries, got %d", len(svc.inputs))
	}
}

func TestSquareWebhookIgnoresIncompletePayment(t *testing.T) {
	svc := &stubDeposits{}
	handler := newTestHandler(t, svc)

	payload := paymentPayload(uuid.NewString(), "pay_123", uuid.New(), "PENDING")
	resp := deliver(handler, payload, sign(payload))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if len(svc.inputs) != 0 {
		t.Fatal("incomplete payments must not be credited")
	}
}
