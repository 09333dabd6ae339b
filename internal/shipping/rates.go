package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

// RateProvider resolves the exchange rate from base to quote currency.
type RateProvider interface {
	Rate(ctx context.Context, base, quote enums.Currency) (decimal.Decimal, error)
}

// StaticRates serves rates from a fixed table. Used in development and tests.
type StaticRates struct {
	Base  enums.Currency
	Table map[enums.Currency]decimal.Decimal
}

// DefaultStaticRates seeds a USD-based table covering every supported
// currency, so display conversion works out of the box when no provider URL is
// configured. The figures are indicative, not market rates.
func DefaultStaticRates() StaticRates {
	return StaticRates{
		Base: enums.CurrencyUSD,
		Table: map[enums.Currency]decimal.Decimal{
			enums.CurrencyUSD: decimal.NewFromInt(1),
			enums.CurrencyEUR: decimal.RequireFromString("0.92"),
			enums.CurrencyGBP: decimal.RequireFromString("0.79"),
		},
	}
}

// Rate returns the tabled rate. Identity when base == quote.
func (s StaticRates) Rate(_ context.Context, base, quote enums.Currency) (decimal.Decimal, error) {
	if base == quote {
		return decimal.NewFromInt(1), nil
	}
	if base != s.Base {
		return decimal.Decimal{}, fmt.Errorf("unsupported base currency %s", base)
	}
	rate, ok := s.Table[quote]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no rate for %s", quote)
	}
	return rate, nil
}

// HTTPRates pulls a rate table from an external provider endpoint.
type HTTPRates struct {
	URL    string
	Client *http.Client
}

type ratesResponse struct {
	Base  string            `json:"base"`
	Rates map[string]string `json:"rates"`
}

// Rate fetches the table and picks the quote currency. Deadline errors map to
// the retryable external-timeout code so callers can retry.
func (h HTTPRates) Rate(ctx context.Context, base, quote enums.Currency) (decimal.Decimal, error) {
	if base == quote {
		return decimal.NewFromInt(1), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("build rates request: %w", err)
	}
	req.URL.RawQuery = fmt.Sprintf("base=%s", base)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeExternalTimeout, err, "rates provider timed out")
		}
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch rates")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("rates provider returned %d", resp.StatusCode))
	}

	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode rates")
	}
	raw, ok := payload.Rates[string(quote)]
	if !ok {
		return decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no rate for %s", quote))
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse rate")
	}
	return rate, nil
}

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// CachedRates wraps a provider with a TTL cache so quote traffic does not
// hammer the upstream. Stale entries are refreshed on demand.
type CachedRates struct {
	provider RateProvider
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRate
}

// NewCachedRates wraps the provider with the given TTL.
func NewCachedRates(provider RateProvider, ttl time.Duration) (*CachedRates, error) {
	if provider == nil {
		return nil, fmt.Errorf("rate provider required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("rate cache ttl must be positive")
	}
	return &CachedRates{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		cache:    map[string]cachedRate{},
	}, nil
}

// Rate returns the cached rate when fresh, otherwise pulls from the provider.
func (c *CachedRates) Rate(ctx context.Context, base, quote enums.Currency) (decimal.Decimal, error) {
	key := fmt.Sprintf("%s/%s", base, quote)

	c.mu.Lock()
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.rate, nil
	}

	rate, err := c.provider.Rate(ctx, base, quote)
	if err != nil {
		// Serve the stale entry rather than failing a display-only quote.
		if ok {
			return entry.rate, nil
		}
		return decimal.Decimal{}, err
	}

	c.mu.Lock()
	c.cache[key] = cachedRate{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()
	return rate, nil
}
