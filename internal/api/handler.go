package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"commerce-core/internal/pricing"
	"commerce-core/internal/service"
	"commerce-core/internal/store"
	"commerce-core/internal/upload"
	"commerce-core/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService) *Handler {
	return &Handler{
		orderService: orderService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/quotes", h.quote)

		v1.POST("/checkout/initiate", h.initiateCheckout)
		v1.POST("/checkout/verify", h.verifyCheckout)

		v1.POST("/payments/redirect/initiate", h.initiateRedirect)
		v1.POST("/payments/redirect/callback/:merchantTxId", h.paymentCallback)
		v1.GET("/payments/redirect/status/:merchantTxId", h.paymentStatus)

		v1.POST("/orders/cod", h.createCODOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/number/:orderNumber", h.getOrderByNumber)
		v1.GET("/users/:userId/orders", h.listUserOrders)

		admin := v1.Group("/admin")
		{
			admin.GET("/orders", h.listOrdersByStatus)
			admin.GET("/orders/stats", h.orderStats)
			admin.PATCH("/orders/:id/status", h.updateStatus)
			admin.PATCH("/orders/:id/tracking", h.updateTracking)
			admin.POST("/orders/:id/refund", h.refundOrder)
			admin.POST("/orders/:id/cod-collected", h.markCODCollected)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type quoteRequest struct {
	Items      []pricing.CartItem `json:"items" binding:"required,min=1,dive"`
	CouponCode string             `json:"coupon_code,omitempty"`
}

// quote prices a cart without creating anything.
func (h *Handler) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	quote, err := h.orderService.QuoteTotals(c.Request.Context(), req.Items, req.CouponCode)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// initiateCheckout prices the cart and opens a gateway intent; nothing is
// persisted yet.
func (h *Handler) initiateCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	intent, err := h.orderService.QuoteAndInitiate(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, intent)
}

// verifyCheckout verifies the gateway signature and creates the paid order.
func (h *Handler) verifyCheckout(c *gin.Context) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orderService.VerifyAndCreate(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// initiateRedirect creates a pending order and returns the gateway redirect.
func (h *Handler) initiateRedirect(c *gin.Context) {
	var req service.RedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	redirect, order, err := h.orderService.InitiateRedirect(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":          order,
		"merchant_tx_id": redirect.MerchantTxID,
		"redirect_url":   redirect.RedirectURL,
	})
}

// paymentCallback receives the asynchronous gateway's server-to-server
// callback. The body is ignored; state is re-fetched from the gateway.
func (h *Handler) paymentCallback(c *gin.Context) {
	merchantTxID := c.Param("merchantTxId")

	order, err := h.orderService.HandleRedirectOutcome(c.Request.Context(), merchantTxID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_number":   order.OrderNumber,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
	})
}

// paymentStatus lets the frontend poll an in-flight redirect payment. It runs
// the same convergence logic as the callback.
func (h *Handler) paymentStatus(c *gin.Context) {
	merchantTxID := c.Param("merchantTxId")

	order, err := h.orderService.HandleRedirectOutcome(c.Request.Context(), merchantTxID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// createCODOrder places a cash-on-delivery order.
func (h *Handler) createCODOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orderService.CreateCODOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// getOrderByNumber handles get order by order number
func (h *Handler) getOrderByNumber(c *gin.Context) {
	order, err := h.orderService.GetOrderByNumber(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// listUserOrders lists a user's orders, newest first.
func (h *Handler) listUserOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	orders, err := h.orderService.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// listOrdersByStatus lists orders in a lifecycle state (admin).
func (h *Handler) listOrdersByStatus(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	orders, err := h.orderService.ListOrdersByStatus(c.Request.Context(), status, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// orderStats aggregates counts and revenue per status (admin).
func (h *Handler) orderStats(c *gin.Context) {
	stats, err := h.orderService.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type statusUpdateRequest struct {
	Status   string `json:"status" binding:"required"`
	Note     string `json:"note,omitempty"`
	Location string `json:"location,omitempty"`
}

// updateStatus performs an admin status transition.
func (h *Handler) updateStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, req.Status, req.Note, req.Location)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// updateTracking sets carrier and tracking details.
func (h *Handler) updateTracking(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.TrackingUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.orderService.UpdateTracking(c.Request.Context(), orderID, &req); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// refundOrder refunds a paid order through its gateway.
func (h *Handler) refundOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.orderService.ProcessRefund(c.Request.Context(), orderID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund_id": result.RefundID,
		"status":    result.Status,
	})
}

// markCODCollected records cash collection on delivery.
func (h *Handler) markCODCollected(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.MarkCODCollected(c.Request.Context(), orderID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"collected": true})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// writeError maps domain failures to HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, pricing.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "details": err.Error()})
	case errors.Is(err, pricing.ErrProductUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Product unavailable", "details": err.Error()})
	case errors.Is(err, pricing.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "Insufficient stock", "details": err.Error()})
	case errors.Is(err, store.ErrCouponExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": "Coupon usage limit reached"})
	case errors.Is(err, service.ErrPaymentVerificationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment verification failed"})
	case errors.Is(err, service.ErrRefundNotEligible):
		c.JSON(http.StatusConflict, gin.H{"error": "Order not eligible for refund", "details": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Invalid status transition", "details": err.Error()})
	case errors.Is(err, upload.ErrUploadFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Asset upload failed", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
