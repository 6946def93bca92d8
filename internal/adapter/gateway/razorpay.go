package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/campus-order/internal/core/domain"
)

type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	MaxTries  uint
	// RetryInterval is the first backoff delay between attempts.
	RetryInterval time.Duration
}

// RazorpayClient creates gateway orders over the Razorpay orders API and
// verifies checkout signatures with the shared key secret.
type RazorpayClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewRazorpayClient(cfg Config, logger *slog.Logger) *RazorpayClient {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}
	return &RazorpayClient{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent opens a gateway order for amount (in major units) with
// reference as the receipt. Transport failures and 5xx/429 answers are
// retried; any other rejection is returned at once.
func (c *RazorpayClient) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, reference string) (domain.PaymentIntent, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:         amount.Shift(2).Round(0).IntPart(),
		Currency:       currency,
		Receipt:        reference,
		PaymentCapture: 1,
	})
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("encode order request: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	if c.cfg.RetryInterval > 0 {
		eb.InitialInterval = c.cfg.RetryInterval
	}
	resp, err := backoff.Retry(ctx, func() (createOrderResponse, error) {
		return c.createOrder(ctx, body)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("gateway order attempt failed",
				slog.String("receipt", reference), slog.Duration("retry_in", next), slog.Any("err", err))
		}),
	)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	return domain.PaymentIntent{
		KeyID:           c.cfg.KeyID,
		GatewayOrderRef: resp.ID,
		Amount:          resp.Amount,
		Currency:        resp.Currency,
	}, nil
}

func (c *RazorpayClient) createOrder(ctx context.Context, body []byte) (createOrderResponse, error) {
	var out createOrderResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return out, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		err := fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error.Description)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return out, err
		}
		return out, backoff.Permanent(err)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, backoff.Permanent(fmt.Errorf("decode gateway response: %w", err))
	}
	if out.ID == "" {
		return out, backoff.Permanent(fmt.Errorf("gateway response has no order id"))
	}
	return out, nil
}

func (c *RazorpayClient) VerifySignature(gatewayOrderRef, gatewayPaymentRef, signature string) bool {
	expected := Sign(c.cfg.KeySecret, gatewayOrderRef, gatewayPaymentRef)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// Sign computes the checkout signature: hex HMAC-SHA256 of "orderRef|paymentRef".
func Sign(secret, gatewayOrderRef, gatewayPaymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderRef + "|" + gatewayPaymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}
