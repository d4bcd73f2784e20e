package gateway

import (
	"fmt"
	"net/http"
	"time"
)

// Verified status codes reported by the asynchronous gateway's status
// endpoint. The callback body's code is advisory; only these are acted on.
const (
	StatusSuccess = "PAYMENT_SUCCESS"
	StatusError   = "PAYMENT_ERROR"
	StatusFailed  = "PAYMENT_FAILED"
	StatusPending = "PAYMENT_PENDING"
)

// Error wraps any failure talking to an external payment processor,
// including refund failures.
type Error struct {
	Gateway string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s gateway %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Intent is an opaque gateway order created before checkout on the
// synchronous gateway.
type Intent struct {
	GatewayOrderID string  `json:"gateway_order_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

// Redirect carries the instructions returned by the asynchronous gateway;
// the merchant-transaction id must be stored before redirecting the user.
type Redirect struct {
	MerchantTxID string `json:"merchant_tx_id"`
	RedirectURL  string `json:"redirect_url"`
}

// StatusResult is the authoritative remote payment state.
type StatusResult struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	GatewayTxID string `json:"gateway_tx_id"`
}

// RefundResult correlates an issued refund.
type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
