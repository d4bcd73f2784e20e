package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"commerce-core/internal/gateway"
	"commerce-core/internal/models"
	"commerce-core/internal/pricing"
	"commerce-core/internal/store"
	"commerce-core/internal/upload"
	"commerce-core/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakePricer struct {
	quote *pricing.Quote
	err   error
	calls int
}

func (f *fakePricer) Quote(_ context.Context, _ []pricing.CartItem, _ string) (*pricing.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

type fakeStore struct {
	created          []*models.Order
	createErr        error
	commitInventory  []bool
	attachedTx       map[int64]string
	orders           map[int64]*models.Order
	byMerchantTx     map[string]*models.Order
	finalizeErr      error
	finalizeCalls    int
	failureCalls     int
	diagnosticCalls  int
	transitionErr    error
	transitions      []string
	refundCalls      int
	refundErr        error
	cancelErr        error
	cancelled        []int64
	expiredIDs       []int64
	codCollectedErr  error
	nextID           int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attachedTx:   make(map[int64]string),
		orders:       make(map[int64]*models.Order),
		byMerchantTx: make(map[string]*models.Order),
		nextID:       100,
	}
}

func (f *fakeStore) CreateOrderAggregate(_ context.Context, order *models.Order, commitInventory bool, _ string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	order.ID = f.nextID
	f.created = append(f.created, order)
	f.commitInventory = append(f.commitInventory, commitInventory)
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) AttachMerchantTxID(_ context.Context, orderID int64, merchantTxID string) error {
	f.attachedTx[orderID] = merchantTxID
	if o, ok := f.orders[orderID]; ok {
		o.MerchantTxID = &merchantTxID
		f.byMerchantTx[merchantTxID] = o
	}
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	return f.orders[id], nil
}

func (f *fakeStore) GetOrderByNumber(_ context.Context, orderNumber string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetOrderByMerchantTxID(_ context.Context, merchantTxID string) (*models.Order, error) {
	return f.byMerchantTx[merchantTxID], nil
}

func (f *fakeStore) LoadOrderRelations(_ context.Context, _ *models.Order) error { return nil }

func (f *fakeStore) GetOrdersByUserID(_ context.Context, _ int64) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeStore) ListOrdersByStatus(_ context.Context, _ string, _ int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeStore) OrderStats(_ context.Context) ([]store.StatusStat, error) { return nil, nil }

func (f *fakeStore) FinalizeRedirectPayment(_ context.Context, merchantTxID, gatewayTxID, code, message string) (*models.Order, error) {
	f.finalizeCalls++
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	o := f.byMerchantTx[merchantTxID]
	if o == nil {
		return nil, errors.New("no such order")
	}
	o.Status = models.OrderStatusConfirmed
	o.PaymentStatus = models.PaymentStatusPaid
	o.GatewayTxID = &gatewayTxID
	o.ResponseCode = &code
	o.ResponseMessage = &message
	return o, nil
}

func (f *fakeStore) RecordPaymentFailure(_ context.Context, merchantTxID, code, _ string) (bool, error) {
	f.failureCalls++
	o := f.byMerchantTx[merchantTxID]
	if o == nil || o.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	o.PaymentStatus = models.PaymentStatusFailed
	o.ResponseCode = &code
	return true, nil
}

func (f *fakeStore) RecordCallbackDiagnostics(_ context.Context, merchantTxID, code, _ string) error {
	f.diagnosticCalls++
	if o := f.byMerchantTx[merchantTxID]; o != nil {
		o.ResponseCode = &code
	}
	return nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, orderID int64, from, to, _, _ string) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.transitions = append(f.transitions, from+"->"+to)
	if o, ok := f.orders[orderID]; ok {
		o.Status = to
	}
	return nil
}

func (f *fakeStore) UpdateTrackingDetails(_ context.Context, _ int64, _, _, _ string, _ *time.Time) error {
	return nil
}

func (f *fakeStore) RefundOrder(_ context.Context, orderID int64, refundID, _ string) error {
	f.refundCalls++
	if f.refundErr != nil {
		return f.refundErr
	}
	if o, ok := f.orders[orderID]; ok {
		o.Status = models.OrderStatusRefunded
		o.PaymentStatus = models.PaymentStatusRefunded
	}
	return nil
}

func (f *fakeStore) MarkCODCollected(_ context.Context, _ int64) error { return f.codCollectedErr }

func (f *fakeStore) ListExpiredPendingIDs(_ context.Context, _ time.Time) ([]int64, error) {
	return f.expiredIDs, nil
}

func (f *fakeStore) CancelPendingOrder(_ context.Context, orderID int64, _ string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type fakeCheckout struct {
	verifyResult bool
	intent       *gateway.Intent
	intentErr    error
	refundResult *gateway.RefundResult
	refundErr    error
	refundCalls  int
	refundAmount float64
}

func (f *fakeCheckout) CreateIntent(_ context.Context, amount float64, currency, _ string) (*gateway.Intent, error) {
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	if f.intent != nil {
		return f.intent, nil
	}
	return &gateway.Intent{GatewayOrderID: "order_gw", Amount: amount, Currency: currency}, nil
}

func (f *fakeCheckout) VerifySignature(_, _, _ string) bool { return f.verifyResult }

func (f *fakeCheckout) Refund(_ context.Context, _ string, amount float64) (*gateway.RefundResult, error) {
	f.refundCalls++
	f.refundAmount = amount
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundResult != nil {
		return f.refundResult, nil
	}
	return &gateway.RefundResult{RefundID: "rfnd_1", Status: "processed"}, nil
}

type fakeRedirect struct {
	initiateErr  error
	initiateCall int
	status       *gateway.StatusResult
	statusErr    error
	statusCalls  int
	refundCalls  int
	refundKey    string
	refundErr    error
}

func (f *fakeRedirect) InitiatePayment(_ context.Context, merchantTxID string, _ float64, _ int64, _, _ string) (*gateway.Redirect, error) {
	f.initiateCall++
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &gateway.Redirect{MerchantTxID: merchantTxID, RedirectURL: "https://pay.example/r"}, nil
}

func (f *fakeRedirect) CheckStatus(_ context.Context, _ string) (*gateway.StatusResult, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeRedirect) Refund(_ context.Context, _ string, _ float64, idempotencyKey string) (*gateway.RefundResult, error) {
	f.refundCalls++
	f.refundKey = idempotencyKey
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &gateway.RefundResult{RefundID: "TR999", Status: "PAYMENT_SUCCESS"}, nil
}

type fakeUploader struct {
	images []models.CustomImage
	err    error
	calls  int
}

func (f *fakeUploader) UploadMany(_ context.Context, _ []upload.ImageGroup, _ string) ([]models.CustomImage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.images, nil
}

type fakePublisher struct {
	confirmed []*models.OrderConfirmedEvent
	changed   []*models.OrderStatusChangedEvent
	refunded  []*models.OrderRefundedEvent
	err       error
}

func (f *fakePublisher) PublishOrderConfirmed(_ context.Context, e *models.OrderConfirmedEvent) error {
	f.confirmed = append(f.confirmed, e)
	return f.err
}

func (f *fakePublisher) PublishStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.changed = append(f.changed, e)
	return f.err
}

func (f *fakePublisher) PublishOrderRefunded(_ context.Context, e *models.OrderRefundedEvent) error {
	f.refunded = append(f.refunded, e)
	return f.err
}

type fakeGuard struct {
	claim      bool
	claimErr   error
	released   int
	refundKeys map[int64]string
}

func (f *fakeGuard) ClaimCallback(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return f.claim, f.claimErr
}

func (f *fakeGuard) ReleaseCallback(_ context.Context, _ string) error {
	f.released++
	return nil
}

func (f *fakeGuard) StoreRefundKey(_ context.Context, orderID int64, key string, _ time.Duration) error {
	if f.refundKeys == nil {
		f.refundKeys = make(map[int64]string)
	}
	f.refundKeys[orderID] = key
	return nil
}

func (f *fakeGuard) GetRefundKey(_ context.Context, orderID int64) (string, error) {
	return f.refundKeys[orderID], nil
}

// --- helpers ---

func testQuote() *pricing.Quote {
	return &pricing.Quote{
		Lines: []pricing.QuoteLine{
			{ProductID: 1, Quantity: 2, UnitPrice: 399, LineTotal: 798},
		},
		Subtotal:    798,
		TotalAmount: 798,
	}
}

func testCheckoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		UserID: 42,
		Shipping: ShippingInfo{
			Name: "A Customer", Email: "a@example.com", Phone: "9999999999",
			Address: "1 Main St", City: "Pune", State: "MH", Pincode: "411001",
		},
		Items: []pricing.CartItem{{ProductID: 1, Quantity: 2}},
	}
}

type fixture struct {
	svc      *OrderService
	store    *fakeStore
	pricer   *fakePricer
	checkout *fakeCheckout
	redirect *fakeRedirect
	uploader *fakeUploader
	pub      *fakePublisher
	guard    *fakeGuard
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		pricer:   &fakePricer{quote: testQuote()},
		checkout: &fakeCheckout{verifyResult: true},
		redirect: &fakeRedirect{},
		uploader: &fakeUploader{},
		pub:      &fakePublisher{},
		guard:    &fakeGuard{claim: true},
	}
	f.svc = NewOrderService(
		f.store, f.pricer, f.checkout, f.redirect, f.uploader, f.pub, f.guard,
		"INR", 24*time.Hour, 30*time.Second,
	)
	return f
}

func init() {
	_ = util.InitLogger("test")
}

// seedRedirectOrder plants a PENDING order correlated to a merchant tx id.
func (f *fixture) seedRedirectOrder(merchantTxID string) *models.Order {
	order := &models.Order{
		ID:            1,
		OrderNumber:   "ORD-1",
		UserID:        42,
		ShippingEmail: "a@example.com",
		TotalAmount:   798,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: models.PaymentMethodOnline,
		MerchantTxID:  &merchantTxID,
	}
	f.store.orders[order.ID] = order
	f.store.byMerchantTx[merchantTxID] = order
	return order
}

// --- checkout path ---

func TestQuoteAndInitiatePersistsNothing(t *testing.T) {
	f := newFixture()

	intent, err := f.svc.QuoteAndInitiate(context.Background(), testCheckoutRequest())
	require.NoError(t, err)

	assert.Equal(t, "order_gw", intent.GatewayOrderID)
	assert.Equal(t, 798.0, intent.Quote.TotalAmount)
	assert.NotEmpty(t, intent.OrderNumber)
	assert.Empty(t, f.store.created, "nothing persisted before payment")
}

func TestVerifyAndCreateRejectsTamperedSignature(t *testing.T) {
	f := newFixture()
	f.checkout.verifyResult = false

	req := &VerifyRequest{
		CheckoutRequest:  *testCheckoutRequest(),
		OrderNumber:      "ORD-1",
		GatewayOrderID:   "order_gw",
		GatewayPaymentID: "pay_1",
		Signature:        "forged",
	}

	_, err := f.svc.VerifyAndCreate(context.Background(), req)
	assert.ErrorIs(t, err, ErrPaymentVerificationFailed)
	assert.Empty(t, f.store.created, "no order row on verification failure")
	assert.Empty(t, f.pub.confirmed)
}

func TestVerifyAndCreateUsesServerComputedTotals(t *testing.T) {
	f := newFixture()

	req := &VerifyRequest{
		CheckoutRequest:  *testCheckoutRequest(),
		OrderNumber:      "ORD-1",
		GatewayOrderID:   "order_gw",
		GatewayPaymentID: "pay_1",
		Signature:        "valid",
	}

	order, err := f.svc.VerifyAndCreate(context.Background(), req)
	require.NoError(t, err)

	// The persisted total comes from the server-side re-quote, never the
	// client payload.
	assert.Equal(t, 798.0, order.TotalAmount)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.PaymentMethodOnline, order.PaymentMethod)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "pay_1", *order.GatewayPaymentID)

	require.Len(t, f.store.commitInventory, 1)
	assert.True(t, f.store.commitInventory[0], "inventory committed with the paid order")

	require.Len(t, f.pub.confirmed, 1)
	assert.Equal(t, "ORD-1", f.pub.confirmed[0].OrderNumber)
}

func TestVerifyAndCreateOversellAborts(t *testing.T) {
	f := newFixture()
	f.store.createErr = store.ErrStockConflict

	req := &VerifyRequest{
		CheckoutRequest:  *testCheckoutRequest(),
		OrderNumber:      "ORD-1",
		GatewayOrderID:   "order_gw",
		GatewayPaymentID: "pay_1",
		Signature:        "valid",
	}

	_, err := f.svc.VerifyAndCreate(context.Background(), req)
	assert.ErrorIs(t, err, pricing.ErrInsufficientStock)
	assert.Empty(t, f.pub.confirmed)
}

func TestVerifyAndCreatePublishFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture()
	f.pub.err = errors.New("broker down")

	req := &VerifyRequest{
		CheckoutRequest:  *testCheckoutRequest(),
		OrderNumber:      "ORD-1",
		GatewayOrderID:   "order_gw",
		GatewayPaymentID: "pay_1",
		Signature:        "valid",
	}

	order, err := f.svc.VerifyAndCreate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
}

// --- COD path ---

func TestCreateCODOrderCommitsInventoryPaymentPending(t *testing.T) {
	f := newFixture()

	order, err := f.svc.CreateCODOrder(context.Background(), testCheckoutRequest())
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.PaymentMethodCOD, order.PaymentMethod)

	require.Len(t, f.store.commitInventory, 1)
	assert.True(t, f.store.commitInventory[0])
	require.Len(t, f.pub.confirmed, 1)
}

func TestMarkCODCollectedNotPending(t *testing.T) {
	f := newFixture()
	f.store.codCollectedErr = store.ErrAlreadyFinalized

	err := f.svc.MarkCODCollected(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRefundNotEligible)
}

// --- redirect path ---

func TestInitiateRedirectDefersInventory(t *testing.T) {
	f := newFixture()

	req := &RedirectRequest{
		CheckoutRequest: *testCheckoutRequest(),
		RedirectURL:     "https://shop/return",
		CallbackURL:     "https://shop/callback",
	}

	redirect, order, err := f.svc.InitiateRedirect(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	require.Len(t, f.store.commitInventory, 1)
	assert.False(t, f.store.commitInventory[0], "stock untouched until payment confirms")

	// The merchant tx id is persisted before the gateway is called, so a
	// crash between the two still leaves a correlatable order.
	require.NotNil(t, order.MerchantTxID)
	assert.Equal(t, *order.MerchantTxID, f.store.attachedTx[order.ID])
	assert.Equal(t, *order.MerchantTxID, redirect.MerchantTxID)
	assert.Equal(t, 1, f.redirect.initiateCall)
}

func TestHandleRedirectOutcomeSuccess(t *testing.T) {
	f := newFixture()
	f.seedRedirectOrder("MTabc")
	f.redirect.status = &gateway.StatusResult{Code: gateway.StatusSuccess, GatewayTxID: "T1"}

	order, err := f.svc.HandleRedirectOutcome(context.Background(), "MTabc")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, 1, f.store.finalizeCalls)
	require.Len(t, f.pub.confirmed, 1)
}

func TestHandleRedirectOutcomeDuplicateIsIdempotent(t *testing.T) {
	f := newFixture()
	order := f.seedRedirectOrder("MTabc")
	order.Status = models.OrderStatusConfirmed
	order.PaymentStatus = models.PaymentStatusPaid
	f.redirect.status = &gateway.StatusResult{Code: gateway.StatusSuccess, GatewayTxID: "T1"}
	f.store.finalizeErr = store.ErrAlreadyFinalized

	got, err := f.svc.HandleRedirectOutcome(context.Background(), "MTabc")
	require.NoError(t, err, "a duplicate callback is not an error")

	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Empty(t, f.pub.confirmed, "no second confirmation event")
}

func TestHandleRedirectOutcomeFailureReleasesNothing(t *testing.T) {
	f := newFixture()
	f.seedRedirectOrder("MTabc")
	f.redirect.status = &gateway.StatusResult{Code: gateway.StatusError, Message: "declined"}

	order, err := f.svc.HandleRedirectOutcome(context.Background(), "MTabc")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status, "order stays PENDING for retry or sweep")
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Zero(t, f.store.finalizeCalls, "no stock mutation on failure")
	assert.Empty(t, f.pub.confirmed)
}

func TestHandleRedirectOutcomePendingRecordsDiagnostics(t *testing.T) {
	f := newFixture()
	f.seedRedirectOrder("MTabc")
	f.redirect.status = &gateway.StatusResult{Code: gateway.StatusPending, Message: "in progress"}

	order, err := f.svc.HandleRedirectOutcome(context.Background(), "MTabc")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 1, f.store.diagnosticCalls)
	assert.Equal(t, 1, f.guard.released, "lock released so a later delivery can re-check")
}

func TestHandleRedirectOutcomeGuardShedsConcurrentDelivery(t *testing.T) {
	f := newFixture()
	f.seedRedirectOrder("MTabc")
	f.guard.claim = false

	_, err := f.svc.HandleRedirectOutcome(context.Background(), "MTabc")
	require.NoError(t, err)

	assert.Zero(t, f.redirect.statusCalls, "shed before hitting the gateway")
	assert.Zero(t, f.store.finalizeCalls)
}

func TestHandleRedirectOutcomeGuardOutageDoesNotBlock(t *testing.T) {
	f := newFixture()
	f.seedRedirectOrder("MTabc")
	f.guard.claim = false
	f.guard.claimErr = errors.New("redis down")
	f.redirect.status = &gateway.StatusResult{Code: gateway.StatusSuccess, GatewayTxID: "T1"}

	order, err := f.svc.HandleRedirectOutcome(context.Background(), "MTabc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestHandleRedirectOutcomeUnknownTx(t *testing.T) {
	f := newFixture()
	f.redirect.status = &gateway.StatusResult{Code: gateway.StatusSuccess}

	_, err := f.svc.HandleRedirectOutcome(context.Background(), "MTnope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// --- refunds ---

func seedPaidCheckoutOrder(f *fixture) *models.Order {
	paymentID := "pay_1"
	order := &models.Order{
		ID:               7,
		OrderNumber:      "ORD-7",
		ShippingEmail:    "a@example.com",
		TotalAmount:      798,
		Status:           models.OrderStatusConfirmed,
		PaymentStatus:    models.PaymentStatusPaid,
		PaymentMethod:    models.PaymentMethodOnline,
		GatewayPaymentID: &paymentID,
	}
	f.store.orders[order.ID] = order
	return order
}

func TestProcessRefundOnUnpaidOrder(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)
	order.PaymentStatus = models.PaymentStatusPending

	_, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Reason: "changed mind"})
	assert.ErrorIs(t, err, ErrRefundNotEligible)
	assert.Zero(t, f.checkout.refundCalls, "gateway never called for an unpaid order")
	assert.Zero(t, f.store.refundCalls)
}

func TestProcessRefundFullAmountDefault(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)

	result, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Reason: "damaged"})
	require.NoError(t, err)

	assert.Equal(t, "rfnd_1", result.RefundID)
	assert.Equal(t, 798.0, f.checkout.refundAmount, "defaults to the full total")
	assert.Equal(t, 1, f.store.refundCalls)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	require.Len(t, f.pub.refunded, 1)
	assert.Equal(t, 798.0, f.pub.refunded[0].RefundAmount)
}

func TestProcessRefundExceedingTotal(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)

	_, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Amount: 9999, Reason: "nope"})
	assert.ErrorIs(t, err, ErrRefundNotEligible)
	assert.Zero(t, f.checkout.refundCalls)
}

func TestProcessRefundGatewayFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)
	f.checkout.refundErr = errors.New("gateway timeout")

	_, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Reason: "damaged"})
	require.Error(t, err)

	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Zero(t, f.store.refundCalls)
	assert.Empty(t, f.pub.refunded)
}

func TestProcessRefundAlreadyRefunded(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)
	order.Status = models.OrderStatusRefunded

	_, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Reason: "again"})
	assert.ErrorIs(t, err, ErrRefundNotEligible)
}

func TestProcessRefundRedirectReusesStoredIdempotencyKey(t *testing.T) {
	f := newFixture()
	txID := "T12345"
	order := &models.Order{
		ID:            9,
		OrderNumber:   "ORD-9",
		ShippingEmail: "a@example.com",
		TotalAmount:   500,
		Status:        models.OrderStatusConfirmed,
		PaymentStatus: models.PaymentStatusPaid,
		GatewayTxID:   &txID,
	}
	f.store.orders[order.ID] = order
	f.guard.refundKeys = map[int64]string{9: "RF-stored"}

	_, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Reason: "damaged"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.redirect.refundCalls)
	assert.Equal(t, "RF-stored", f.redirect.refundKey, "retries reuse the same gateway key")
	assert.Zero(t, f.checkout.refundCalls)
}

func TestProcessRefundNoCapturedTransaction(t *testing.T) {
	f := newFixture()
	order := &models.Order{
		ID:            10,
		OrderNumber:   "ORD-10",
		TotalAmount:   500,
		Status:        models.OrderStatusConfirmed,
		PaymentStatus: models.PaymentStatusPaid,
	}
	f.store.orders[order.ID] = order

	_, err := f.svc.ProcessRefund(context.Background(), order.ID, &RefundRequest{Reason: "x"})
	assert.ErrorIs(t, err, ErrRefundNotEligible)
}

// --- lifecycle transitions ---

func TestUpdateStatusForwardOnly(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)

	_, err := f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusShipped, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CONFIRMED->SHIPPED"}, f.store.transitions)
	require.Len(t, f.pub.changed, 1)
	assert.Equal(t, models.OrderStatusConfirmed, f.pub.changed[0].OldStatus)
	assert.Equal(t, models.OrderStatusShipped, f.pub.changed[0].NewStatus)

	_, err = f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusConfirmed, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition, "backward transition rejected")
}

func TestUpdateStatusRefundedRequiresRefundOperation(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)

	_, err := f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusRefunded, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusTerminalStateRejected(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)
	order.Status = models.OrderStatusDelivered

	_, err := f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusShipped, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusConcurrentMove(t *testing.T) {
	f := newFixture()
	order := seedPaidCheckoutOrder(f)
	f.store.transitionErr = store.ErrStatusConflict

	_, err := f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusShipped, "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// --- sweeper ---

func TestCancelExpiredPendingOrders(t *testing.T) {
	f := newFixture()
	f.store.expiredIDs = []int64{1, 2, 3}

	count, err := f.svc.CancelExpiredPendingOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []int64{1, 2, 3}, f.store.cancelled)
}

func TestCancelExpiredPendingSkipsRacedOrders(t *testing.T) {
	f := newFixture()
	f.store.expiredIDs = []int64{1}
	f.store.cancelErr = store.ErrStatusConflict

	count, err := f.svc.CancelExpiredPendingOrders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "an order paid during the sweep is left alone")
}

// --- queries ---

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetOrder(context.Background(), 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestNewOrderNumberFormat(t *testing.T) {
	n1 := NewOrderNumber()
	n2 := NewOrderNumber()

	assert.Regexp(t, `^ORD-\d+-[0-9A-F]{6}$`, n1)
	assert.NotEqual(t, n1, n2)
}
