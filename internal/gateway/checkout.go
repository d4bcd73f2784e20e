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
	"math"
	"net/http"
	"time"

	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// CheckoutGateway is the synchronous-confirmation adapter: the client
// completes payment out-of-band and returns (order id, payment id,
// signature), which we verify against an HMAC over "orderID|paymentID".
type CheckoutGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

// NewCheckoutGateway creates the adapter. A nil httpClient gets a default
// with a 15s timeout.
func NewCheckoutGateway(keyID, keySecret, baseURL string, httpClient *http.Client) *CheckoutGateway {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &CheckoutGateway{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		client:    httpClient,
		logger:    util.NamedLogger("checkout-gateway"),
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createIntentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateIntent registers the amount with the gateway and returns its opaque
// order id. Nothing is persisted on our side at this point.
func (g *CheckoutGateway) CreateIntent(ctx context.Context, amount float64, currency, receipt string) (*Intent, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("checkout", "create_intent").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(createIntentRequest{
		Amount:   toMinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, &Error{Gateway: "checkout", Op: "create_intent", Err: err}
	}

	var resp createIntentResponse
	if err := g.do(ctx, http.MethodPost, "/v1/orders", body, &resp); err != nil {
		return nil, &Error{Gateway: "checkout", Op: "create_intent", Err: err}
	}

	g.logger.Info("Payment intent created",
		zap.String("gateway_order_id", resp.ID),
		zap.Float64("amount", amount))

	return &Intent{GatewayOrderID: resp.ID, Amount: amount, Currency: currency}, nil
}

// VerifySignature recomputes the HMAC-SHA256 over "orderID|paymentID" with
// the shared secret and compares it to the supplied signature in constant
// time.
func (g *CheckoutGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	ok := hmac.Equal([]byte(expected), []byte(signature))
	if ok {
		util.PaymentVerificationsTotal.WithLabelValues("ok").Inc()
	} else {
		util.PaymentVerificationsTotal.WithLabelValues("mismatch").Inc()
	}
	return ok
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund issues a refund against a captured payment.
func (g *CheckoutGateway) Refund(ctx context.Context, gatewayPaymentID string, amount float64) (*RefundResult, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("checkout", "refund").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(refundRequest{Amount: toMinorUnits(amount)})
	if err != nil {
		return nil, &Error{Gateway: "checkout", Op: "refund", Err: err}
	}

	var resp refundResponse
	path := fmt.Sprintf("/v1/payments/%s/refund", gatewayPaymentID)
	if err := g.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, &Error{Gateway: "checkout", Op: "refund", Err: err}
	}

	return &RefundResult{RefundID: resp.ID, Status: resp.Status}, nil
}

func (g *CheckoutGateway) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
