package broker

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// LiveAdapter submits real orders to a brokerage REST API. Requests are
// authenticated with an ECDSA/keccak signature over the request body (an
// HMAC-style scheme) rather than an on-chain order signature — there is no
// on-chain settlement in this domain.
type LiveAdapter struct {
	mu         sync.Mutex
	baseURL    string
	httpClient *http.Client
	privateKey *ecdsa.PrivateKey
	address    string
	apiKey     string

	tokenRefreshLead time.Duration
	retry            RetryPolicy
	token            Token

	tickCh chan domain.Tick
	fillCh chan domain.Fill
	closed bool
}

// NewLiveAdapter builds a LiveAdapter from environment-provided credentials.
// WALLET_PRIVATE_KEY signs outbound requests; BROKER_BASE_URL selects the
// venue endpoint.
func NewLiveAdapter(baseURL string, tokenRefreshLead time.Duration) (*LiveAdapter, error) {
	a := &LiveAdapter{
		baseURL:          baseURL,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		apiKey:           os.Getenv("BROKER_API_KEY"),
		tokenRefreshLead: tokenRefreshLead,
		retry:            TokenRefreshRetryPolicy(),
		tickCh:           make(chan domain.Tick, 256),
		fillCh:           make(chan domain.Fill, 256),
	}

	pkHex := strings.TrimPrefix(os.Getenv("WALLET_PRIVATE_KEY"), "0x")
	if pkHex != "" {
		pk, err := crypto.HexToECDSA(pkHex)
		if err != nil {
			return nil, fmt.Errorf("invalid request-signing key: %w", err)
		}
		a.privateKey = pk
		a.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	log.Info().Str("address", a.address).Msg("🚀 live broker adapter initialized")
	return a, nil
}

// Connect performs the initial token fetch and starts the background
// refresh loop.
func (a *LiveAdapter) Connect(ctx context.Context) error {
	if err := a.refreshToken(ctx); err != nil {
		return fmt.Errorf("initial token fetch: %w", err)
	}
	go a.refreshLoop(ctx)
	return nil
}

func (a *LiveAdapter) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			needs := a.token.NeedsRefresh(time.Now(), a.tokenRefreshLead)
			a.mu.Unlock()
			if !needs {
				continue
			}
			if err := a.refreshToken(ctx); err != nil {
				log.Error().Err(err).Msg("❌ token refresh failed")
			}
		}
	}
}

// refreshToken fetches a new token, retrying with the shared backoff
// policy (1s, doubling, capped at 10s, up to 5 attempts).
func (a *LiveAdapter) refreshToken(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		tok, err := a.fetchToken(ctx)
		if err == nil {
			a.mu.Lock()
			a.token = tok
			a.mu.Unlock()
			log.Info().Time("expires_at", tok.ExpiresAt).Msg("🔑 broker token refreshed")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("⚠️ token fetch failed, retrying")

		select {
		case <-time.After(a.retry.NextDelay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("token refresh exhausted after %d attempts: %w", a.retry.MaxAttempts, lastErr)
}

func (a *LiveAdapter) fetchToken(ctx context.Context) (Token, error) {
	resp, err := a.post(ctx, "/auth/token", map[string]string{"api_key": a.apiKey})
	if err != nil {
		return Token{}, err
	}
	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return Token{}, fmt.Errorf("parse token response: %w", err)
	}
	now := time.Now()
	return Token{
		Value:     body.AccessToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// Submit signs and posts a new order with the shared retry policy.
func (a *LiveAdapter) Submit(ctx context.Context, order *domain.Order) (string, error) {
	payload := map[string]any{
		"client_order_id": order.ID,
		"symbol":          order.Symbol,
		"side":            string(order.Side),
		"type":            string(order.Type),
		"time_in_force":   string(order.TimeInForce),
		"quantity":        order.Quantity.String(),
		"limit_price":     order.LimitPrice.String(),
	}

	var lastErr error
	retry := DefaultRetryPolicy()
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		resp, err := a.post(ctx, "/orders", payload)
		if err == nil {
			var result struct {
				BrokerOrderID string `json:"broker_order_id"`
			}
			if err := json.Unmarshal(resp, &result); err != nil {
				return "", fmt.Errorf("parse order response: %w", err)
			}
			log.Info().Str("order_id", order.ID).Str("broker_order_id", result.BrokerOrderID).Msg("✅ order submitted to broker")
			return result.BrokerOrderID, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Str("order_id", order.ID).Msg("⚠️ order submission failed, retrying")

		select {
		case <-time.After(retry.NextDelay(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("order submission exhausted after %d attempts: %w", retry.MaxAttempts, lastErr)
}

// Cancel requests cancellation of a resting order.
func (a *LiveAdapter) Cancel(ctx context.Context, brokerOrderID string) error {
	_, err := a.post(ctx, "/orders/"+brokerOrderID+"/cancel", nil)
	return err
}

// Ticks is unimplemented for the live adapter in this module: it returns a
// tick channel that nothing feeds, and the stream package's websocket
// client is not wired to it. The order/fill paths do not depend on it.
func (a *LiveAdapter) Ticks(ctx context.Context, symbols []string) (<-chan domain.Tick, error) {
	return a.tickCh, nil
}

// Fills returns the channel fed by a venue fill-notification consumer
// (wired externally via PushFill, e.g. from a websocket stream handler).
func (a *LiveAdapter) Fills(ctx context.Context) (<-chan domain.Fill, error) {
	return a.fillCh, nil
}

// PushFill allows an external stream consumer to deliver a fill
// notification into this adapter's Fills channel.
func (a *LiveAdapter) PushFill(f domain.Fill) {
	select {
	case a.fillCh <- f:
	default:
		log.Warn().Str("order_id", f.OrderID).Msg("⚠️ fill channel full, dropping notification")
	}
}

// Close shuts down the HTTP client's idle connections.
func (a *LiveAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.httpClient.CloseIdleConnections()
	return nil
}

func (a *LiveAdapter) post(ctx context.Context, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	a.mu.Lock()
	token := a.token.Value
	a.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if a.privateKey != nil {
		sig, err := a.signRequest(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Signer-Address", a.address)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("broker returned %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// signRequest produces a keccak256-over-body ECDSA signature over the
// flat REST request body.
func (a *LiveAdapter) signRequest(body []byte) (string, error) {
	hash := crypto.Keccak256(body)
	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%x", sig), nil
}
