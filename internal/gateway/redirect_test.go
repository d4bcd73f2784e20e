package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMerchantTxID(t *testing.T) {
	id1 := NewMerchantTxID()
	id2 := NewMerchantTxID()

	assert.True(t, strings.HasPrefix(id1, "MT"))
	assert.Len(t, id1, 22)
	assert.NotEqual(t, id1, id2)
}

func TestSign(t *testing.T) {
	g := NewRedirectGateway("MID", "salt", "1", "http://unused", nil)

	sum := sha256.Sum256([]byte("payload/pg/v1/pay" + "salt"))
	expected := hex.EncodeToString(sum[:]) + "###1"

	assert.Equal(t, expected, g.sign("payload/pg/v1/pay"))
}

func TestInitiatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/v1/pay", r.URL.Path)

		var envelope map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))

		// X-VERIFY covers the base64 payload plus the path.
		sum := sha256.Sum256([]byte(envelope["request"] + "/pg/v1/pay" + "salt"))
		assert.Equal(t, hex.EncodeToString(sum[:])+"###1", r.Header.Get("X-VERIFY"))

		decoded, err := base64.StdEncoding.DecodeString(envelope["request"])
		require.NoError(t, err)

		var req initiateRequest
		require.NoError(t, json.Unmarshal(decoded, &req))
		assert.Equal(t, "MID", req.MerchantID)
		assert.Equal(t, "MTabc", req.MerchantTxID)
		assert.Equal(t, int64(250000), req.Amount)
		assert.Equal(t, "U42", req.UserID)

		var resp initiateResponse
		resp.Success = true
		resp.Data.InstrumentResponse.RedirectInfo.URL = "https://pay.example/redirect/xyz"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewRedirectGateway("MID", "salt", "1", srv.URL, srv.Client())

	redirect, err := g.InitiatePayment(context.Background(), "MTabc", 2500.00, 42, "https://shop/return", "https://shop/callback")
	require.NoError(t, err)
	assert.Equal(t, "MTabc", redirect.MerchantTxID)
	assert.Equal(t, "https://pay.example/redirect/xyz", redirect.RedirectURL)
}

func TestInitiatePaymentDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(initiateResponse{Success: false, Code: "BAD_REQUEST", Message: "amount invalid"})
	}))
	defer srv.Close()

	g := NewRedirectGateway("MID", "salt", "1", srv.URL, srv.Client())

	_, err := g.InitiatePayment(context.Background(), "MTabc", 0, 42, "r", "c")
	require.Error(t, err)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "redirect", gerr.Gateway)
	assert.Equal(t, "initiate", gerr.Op)
}

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/v1/status/MID/MTabc", r.URL.Path)
		assert.Equal(t, "MID", r.Header.Get("X-MERCHANT-ID"))

		sum := sha256.Sum256([]byte("/pg/v1/status/MID/MTabc" + "salt"))
		assert.Equal(t, hex.EncodeToString(sum[:])+"###1", r.Header.Get("X-VERIFY"))

		var resp statusResponse
		resp.Success = true
		resp.Code = StatusSuccess
		resp.Message = "Your payment is successful."
		resp.Data.TransactionID = "T12345"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewRedirectGateway("MID", "salt", "1", srv.URL, srv.Client())

	status, err := g.CheckStatus(context.Background(), "MTabc")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status.Code)
	assert.Equal(t, "T12345", status.GatewayTxID)
}

func TestRedirectRefundUsesIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/v1/refund", r.URL.Path)

		var envelope map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		decoded, err := base64.StdEncoding.DecodeString(envelope["request"])
		require.NoError(t, err)

		var req redirectRefundRequest
		require.NoError(t, json.Unmarshal(decoded, &req))
		assert.Equal(t, "RF-key-1", req.MerchantTxID)
		assert.Equal(t, "T12345", req.OriginalTxID)
		assert.Equal(t, int64(100000), req.Amount)

		var resp redirectRefundResponse
		resp.Success = true
		resp.Code = "PAYMENT_SUCCESS"
		resp.Data.TransactionID = "TR999"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewRedirectGateway("MID", "salt", "1", srv.URL, srv.Client())

	result, err := g.Refund(context.Background(), "T12345", 1000.00, "RF-key-1")
	require.NoError(t, err)
	assert.Equal(t, "TR999", result.RefundID)
}
