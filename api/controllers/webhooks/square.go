package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/api/responses"
	"github.com/giftmarket/giftmarket-backend/internal/deposits"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	pkgredis "github.com/giftmarket/giftmarket-backend/pkg/redis"
)

const (
	guardScope = "square_webhook"
	guardTTL   = 7 * 24 * time.Hour
)

type depositService interface {
	Deposit(ctx context.Context, input deposits.Input) (*deposits.Result, error)
}

type squareClient interface {
	SigningSecret() string
}

// PaymentEvent is the slice of Square's webhook payload the deposit flow needs.
// The payment's reference id carries the account the buyer is topping up.
type PaymentEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		ID     string `json:"id"`
		Object struct {
			Payment struct {
				ID          string `json:"id"`
				Status      string `json:"status"`
				ReferenceID string `json:"reference_id"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// Guard deduplicates webhook deliveries by event id.
type Guard struct {
	store pkgredis.IdempotencyStore
}

func NewGuard(store pkgredis.IdempotencyStore) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	return &Guard{store: store}, nil
}

func (g *Guard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, eventID), "1", guardTTL)
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (g *Guard) Delete(ctx context.Context, eventID string) error {
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}

// SquareWebhook handles payment lifecycle events from Square. Completed
// payments are credited to the account named in the payment reference.
func SquareWebhook(svc depositService, client squareClient, guard *Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Square-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing"))
			return
		}
		if !validateSquareSignature(payload, client.SigningSecret(), sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "invalid square signature"))
			return
		}

		var event PaymentEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			eventID = event.Data.ID
		}
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}

		if event.Type != "payment.updated" && event.Type != "payment.created" {
			responses.WriteSuccess(w, nil)
			return
		}
		if !strings.EqualFold(event.Data.Object.Payment.Status, "COMPLETED") {
			responses.WriteSuccess(w, nil)
			return
		}

		accountID, err := uuid.Parse(strings.TrimSpace(event.Data.Object.Payment.ReferenceID))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment reference is not an account id"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		result, err := svc.Deposit(ctx, deposits.Input{
			AccountID:   accountID,
			ProviderRef: event.Data.Object.Payment.ID,
		})
		if err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":       eventID,
				"transaction_id": result.Transaction.ID,
				"replayed":       result.Replayed,
			}), "square payment event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

func validateSquareSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
