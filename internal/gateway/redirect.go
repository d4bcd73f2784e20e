package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"commerce-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedirectGateway is the asynchronous-redirect adapter: payment is confirmed
// later via webhook callback or explicit status polling, correlated by a
// caller-generated merchant-transaction id.
type RedirectGateway struct {
	merchantID string
	saltKey    string
	saltIndex  string
	baseURL    string
	client     *http.Client
	logger     *zap.Logger
}

func NewRedirectGateway(merchantID, saltKey, saltIndex, baseURL string, httpClient *http.Client) *RedirectGateway {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &RedirectGateway{
		merchantID: merchantID,
		saltKey:    saltKey,
		saltIndex:  saltIndex,
		baseURL:    baseURL,
		client:     httpClient,
		logger:     util.NamedLogger("redirect-gateway"),
	}
}

// NewMerchantTxID generates a merchant-transaction id. Generated before the
// gateway call so the eventual callback can always be correlated.
func NewMerchantTxID() string {
	return "MT" + strings.ReplaceAll(uuid.New().String(), "-", "")[:20]
}

type initiateRequest struct {
	MerchantID    string `json:"merchantId"`
	MerchantTxID  string `json:"merchantTransactionId"`
	Amount        int64  `json:"amount"` // minor units
	UserID        string `json:"merchantUserId"`
	RedirectURL   string `json:"redirectUrl"`
	CallbackURL   string `json:"callbackUrl"`
	PaymentScheme string `json:"paymentInstrumentType"`
}

type initiateResponse struct {
	Success bool `json:"success"`
	Data    struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InitiatePayment registers the payment and returns the redirect
// instructions. The caller must persist merchantTxID on the order before
// redirecting the user.
func (g *RedirectGateway) InitiatePayment(ctx context.Context, merchantTxID string, amount float64, userID int64, redirectURL, callbackURL string) (*Redirect, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("redirect", "initiate").Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(initiateRequest{
		MerchantID:    g.merchantID,
		MerchantTxID:  merchantTxID,
		Amount:        toMinorUnits(amount),
		UserID:        fmt.Sprintf("U%d", userID),
		RedirectURL:   redirectURL,
		CallbackURL:   callbackURL,
		PaymentScheme: "PAY_PAGE",
	})
	if err != nil {
		return nil, &Error{Gateway: "redirect", Op: "initiate", Err: err}
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	body, _ := json.Marshal(map[string]string{"request": encoded})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/pg/v1/pay", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Gateway: "redirect", Op: "initiate", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", g.sign(encoded+"/pg/v1/pay"))

	var resp initiateResponse
	if err := g.send(req, &resp); err != nil {
		return nil, &Error{Gateway: "redirect", Op: "initiate", Err: err}
	}
	if !resp.Success {
		return nil, &Error{Gateway: "redirect", Op: "initiate",
			Err: fmt.Errorf("gateway declined: %s %s", resp.Code, resp.Message)}
	}

	g.logger.Info("Redirect payment initiated",
		zap.String("merchant_tx_id", merchantTxID),
		zap.Float64("amount", amount))

	return &Redirect{
		MerchantTxID: merchantTxID,
		RedirectURL:  resp.Data.InstrumentResponse.RedirectInfo.URL,
	}, nil
}

type statusResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transactionId"`
	} `json:"data"`
}

// CheckStatus fetches the authoritative payment state. Callback payloads are
// advisory only; every callback re-verifies through this endpoint.
func (g *RedirectGateway) CheckStatus(ctx context.Context, merchantTxID string) (*StatusResult, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("redirect", "status").Observe(time.Since(start).Seconds())
	}()

	path := fmt.Sprintf("/pg/v1/status/%s/%s", g.merchantID, merchantTxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, &Error{Gateway: "redirect", Op: "status", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-MERCHANT-ID", g.merchantID)
	req.Header.Set("X-VERIFY", g.sign(path))

	var resp statusResponse
	if err := g.send(req, &resp); err != nil {
		return nil, &Error{Gateway: "redirect", Op: "status", Err: err}
	}

	return &StatusResult{
		Code:        resp.Code,
		Message:     resp.Message,
		GatewayTxID: resp.Data.TransactionID,
	}, nil
}

type redirectRefundRequest struct {
	MerchantID    string `json:"merchantId"`
	MerchantTxID  string `json:"merchantTransactionId"` // refund idempotency key
	OriginalTxID  string `json:"originalTransactionId"`
	Amount        int64  `json:"amount"`
	CallbackSuppr bool   `json:"suppressCallback"`
}

type redirectRefundResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transactionId"`
	} `json:"data"`
}

// Refund issues a refund keyed by a caller-supplied idempotency key distinct
// from the original transaction id.
func (g *RedirectGateway) Refund(ctx context.Context, originalTxID string, amount float64, idempotencyKey string) (*RefundResult, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("redirect", "refund").Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(redirectRefundRequest{
		MerchantID:    g.merchantID,
		MerchantTxID:  idempotencyKey,
		OriginalTxID:  originalTxID,
		Amount:        toMinorUnits(amount),
		CallbackSuppr: true,
	})
	if err != nil {
		return nil, &Error{Gateway: "redirect", Op: "refund", Err: err}
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	body, _ := json.Marshal(map[string]string{"request": encoded})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/pg/v1/refund", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Gateway: "redirect", Op: "refund", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", g.sign(encoded+"/pg/v1/refund"))

	var resp redirectRefundResponse
	if err := g.send(req, &resp); err != nil {
		return nil, &Error{Gateway: "redirect", Op: "refund", Err: err}
	}
	if !resp.Success {
		return nil, &Error{Gateway: "redirect", Op: "refund",
			Err: fmt.Errorf("gateway declined: %s %s", resp.Code, resp.Message)}
	}

	return &RefundResult{RefundID: resp.Data.TransactionID, Status: resp.Code}, nil
}

// sign computes the X-VERIFY checksum: sha256(data + saltKey) + "###" + index.
func (g *RedirectGateway) sign(data string) string {
	sum := sha256.Sum256([]byte(data + g.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + g.saltIndex
}

func (g *RedirectGateway) send(req *http.Request, out interface{}) error {
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
