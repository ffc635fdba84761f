package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenCacheKey holds the cached OAuth access token in Redis.  The TTL
// is the gateway's expires_in minus a slack so a token is never used
// right at its expiry.
const (
	tokenCacheKey    = "paypal:access_token"
	tokenExpirySlack = 10 * time.Minute
)

// PayPal is a thin REST client for the PayPal orders, captures, payouts
// and webhook-verification APIs.  Unlike Stripe there is no SDK; the
// wire format is small enough to speak directly.
type PayPal struct {
	http      *http.Client
	rdb       *redis.Client // optional token cache; nil disables caching
	baseURL   string
	clientID  string
	secret    string
	webhookID string
}

// NewPayPal builds a PayPal gateway.  rdb may be nil, in which case a
// fresh OAuth token is fetched for every call.
func NewPayPal(baseURL, clientID, secret, webhookID string, timeout time.Duration, rdb *redis.Client) *PayPal {
	return &PayPal{
		http:      &http.Client{Timeout: timeout},
		rdb:       rdb,
		baseURL:   strings.TrimRight(baseURL, "/"),
		clientID:  clientID,
		secret:    secret,
		webhookID: webhookID,
	}
}

// CreateOrder creates a CAPTURE-intent order over the buyer price and
// returns the order id the client approves against.
func (p *PayPal) CreateOrder(ctx context.Context, buyerPrice float64) (string, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{"amount": map[string]string{"currency_code": "EUR", "value": formatAmount(buyerPrice)}},
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.post(ctx, "/v2/checkout/orders", payload, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("paypal: create order: no order id in response")
	}
	return resp.ID, nil
}

// CaptureOrder captures an approved order and returns the capture id
// used later for refunds.  A response carrying a "details" array means
// PayPal declined the capture.
func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (string, error) {
	body, status, err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Details []json.RawMessage `json:"details"`
		Units   []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("paypal: capture order: decode: %w", err)
	}
	if len(resp.Details) > 0 {
		return "", fmt.Errorf("paypal: capture order %s: %w", orderID, ErrDeclined)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("paypal: capture order %s: unexpected status %d", orderID, status)
	}
	if len(resp.Units) == 0 || len(resp.Units[0].Payments.Captures) == 0 {
		return "", fmt.Errorf("paypal: capture order %s: no capture in response", orderID)
	}
	capture := resp.Units[0].Payments.Captures[0]
	if capture.Status != "COMPLETED" {
		return "", fmt.Errorf("paypal: capture order %s: capture status %s", orderID, capture.Status)
	}
	return capture.ID, nil
}

// Refund refunds a completed capture in full.  PayPal answers
// synchronously, so on success the caller may flip the transaction to
// payment_refunded directly.
func (p *PayPal) Refund(ctx context.Context, captureID string) error {
	body, status, err := p.do(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", []byte("{}"))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("paypal: refund capture %s: unexpected status %d", captureID, status)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("paypal: refund capture %s: decode: %w", captureID, err)
	}
	if resp.Status != "COMPLETED" {
		return fmt.Errorf("paypal: refund capture %s: refund status %s", captureID, resp.Status)
	}
	return nil
}

// Payout sends the seller price to the seller's PayPal address.  The
// transaction id doubles as the sender batch id, making the payout
// idempotent on the gateway side and correlatable from the payouts
// webhook.  Returns the payout batch id.
func (p *PayPal) Payout(ctx context.Context, receiverEmail string, amount int, batchID string) (string, error) {
	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": batchID,
			"email_subject":   "Your Taqo payout",
			"recipient_type":  "EMAIL",
		},
		"items": []map[string]interface{}{
			{
				"amount":   map[string]string{"value": strconv.Itoa(amount), "currency": "EUR"},
				"receiver": receiverEmail,
			},
		},
	}
	var resp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	if err := p.post(ctx, "/v1/payments/payouts", payload, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	return resp.BatchHeader.PayoutBatchID, nil
}

// VerifyWebhook asks PayPal to verify an inbound webhook delivery.  The
// transmission headers come from the HTTP request; event is the raw
// body.
func (p *PayPal) VerifyWebhook(ctx context.Context, header http.Header, event json.RawMessage) error {
	payload := map[string]interface{}{
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"webhook_id":        p.webhookID,
		"webhook_event":     event,
	}
	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.post(ctx, "/v1/notifications/verify-webhook-signature", payload, http.StatusOK, &resp); err != nil {
		return err
	}
	if resp.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("paypal: webhook verification status %s", resp.VerificationStatus)
	}
	return nil
}

// post sends an authenticated JSON request and decodes the response,
// enforcing the expected status code.
func (p *PayPal) post(ctx context.Context, path string, payload interface{}, wantStatus int, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("paypal: marshal request: %w", err)
	}
	body, status, err := p.do(ctx, http.MethodPost, path, raw)
	if err != nil {
		return err
	}
	if status != wantStatus {
		return fmt.Errorf("paypal: POST %s: unexpected status %d", path, status)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("paypal: POST %s: decode: %w", path, err)
		}
	}
	return nil
}

// do performs an authenticated request and returns the raw body and
// status code.
func (p *PayPal) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("paypal: %s %s: read body: %w", method, path, err)
	}
	return raw, resp.StatusCode, nil
}

// accessToken returns a cached OAuth token or refreshes one from the
// gateway.  The cache TTL keeps a slack below the token's own expiry.
func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	if p.rdb != nil {
		if token, err := p.rdb.Get(ctx, tokenCacheKey).Result(); err == nil && token != "" {
			return token, nil
		}
	}
	token, expiresIn, err := p.refreshAccessToken(ctx)
	if err != nil {
		return "", err
	}
	if p.rdb != nil {
		ttl := time.Duration(expiresIn)*time.Second - tokenExpirySlack
		if ttl > 0 {
			if err := p.rdb.Set(ctx, tokenCacheKey, token, ttl).Err(); err != nil {
				// Cache failures only cost an extra OAuth round trip.
				log.Printf("paypal: token cache write failed: %v", err)
			}
		}
	}
	return token, nil
}

func (p *PayPal) refreshAccessToken(ctx context.Context) (string, int, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(p.clientID, p.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("paypal: oauth: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("paypal: oauth: decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, fmt.Errorf("paypal: oauth: no access token in response")
	}
	return out.AccessToken, out.ExpiresIn, nil
}

// formatAmount renders a price the way the PayPal amount schema expects
// it: no trailing zeros beyond cents, dot separator.
func formatAmount(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	return strings.TrimSuffix(strings.TrimSuffix(s, "0"), ".0")
}
