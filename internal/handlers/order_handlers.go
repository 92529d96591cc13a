package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/taptosell-orders/internal/middleware"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
)

//
// --- Checkout & Payment ---
//

type quoteRequest struct {
	Items      []models.CartLine `json:"items" binding:"required,min=1,max=100,dive"`
	CouponCode string            `json:"couponCode" binding:"omitempty,couponcode"`
}

type checkoutRequest struct {
	Items           []models.CartLine `json:"items" binding:"required,min=1,max=100,dive"`
	ShippingAddress models.Address    `json:"shippingAddress"`
	CouponCode      string            `json:"couponCode" binding:"omitempty,couponcode"`
	Notes           string            `json:"notes" binding:"max=500"`
}

// QuoteCheckout is the handler for POST /v1/checkout/quote
// It prices a cart (and coupon) without creating an order.
func (h *Handlers) QuoteCheckout(c *gin.Context) {
	var req quoteRequest
	if !bindJSON(c, &req) {
		return
	}

	q, err := h.Orders.Quote(c.Request.Context(), req.Items, req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"quote": q}
	if q.AppliedCoupon != nil {
		resp["couponCode"] = q.AppliedCoupon.Code
	}
	c.JSON(http.StatusOK, resp)
}

// Checkout is the handler for POST /v1/checkout
func (h *Handlers) Checkout(c *gin.Context) {
	// 1. --- Bind & Validate Input ---
	var req checkoutRequest
	if !bindJSON(c, &req) {
		return
	}

	// 2. --- Price, Number & Store the Order ---
	o, err := h.Orders.Checkout(c.Request.Context(), orders.CheckoutRequest{
		UserID:          middleware.UserID(c),
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Return Response ---
	// The client needs the gateway order id to open the payment UI.
	c.JSON(http.StatusCreated, gin.H{
		"message":        "Order created, awaiting payment",
		"orderNumber":    o.OrderNumber,
		"total":          o.Total,
		"currency":       o.Currency,
		"gatewayOrderId": o.GatewayOrderID,
		"order":          o,
	})
}

type paymentCallbackRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
	Status           string `json:"status" binding:"omitempty,oneof=success failed"`
	FailureReason    string `json:"failureReason" binding:"max=255"`
}

// PaymentCallback is the handler for POST /v1/payments/callback
// The gateway (or the payment UI relaying it) reports the result of a payment attempt.
func (h *Handlers) PaymentCallback(c *gin.Context) {
	// 1. --- Bind Input ---
	var req paymentCallbackRequest
	if !bindJSON(c, &req) {
		return
	}

	// 2. --- Build the Gateway Report ---
	cb := orders.PaymentCallback{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	}
	if req.Status == "failed" {
		cb.FailureReason = req.FailureReason
		if cb.FailureReason == "" {
			cb.FailureReason = "payment declined by gateway"
		}
	}

	// 3. --- Verify Signature & Confirm or Fail ---
	o, err := h.Orders.HandlePaymentCallback(c.Request.Context(), cb)
	if err != nil {
		respondError(c, err)
		return
	}

	// 4. --- Return Response ---
	c.JSON(http.StatusOK, gin.H{
		"orderNumber":   o.OrderNumber,
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
	})
}

//
// --- Customer Orders ---
//

// pageParams reads ?limit=&offset= with the manager's defaults.
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, offset
}

// GetMyOrders is the handler for GET /v1/orders
func (h *Handlers) GetMyOrders(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := h.Orders.List(c.Request.Context(), orders.Filter{
		UserID: middleware.UserID(c),
		Status: models.OrderStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// GetMyOrder is the handler for GET /v1/orders/:number
func (h *Handlers) GetMyOrder(c *gin.Context) {
	o, err := h.Orders.GetForUser(c.Request.Context(), middleware.UserID(c), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// CancelMyOrder is the handler for POST /v1/orders/:number/cancel
// Customers may only cancel orders that are still pending.
func (h *Handlers) CancelMyOrder(c *gin.Context) {
	// 1. --- Read Optional Reason ---
	var req cancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	// 2. --- Cancel (owner only, pending only) ---
	o, err := h.Orders.CancelOwn(c.Request.Context(), middleware.UserID(c), c.Param("number"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled", "order": o})
}

//
// --- Admin Orders ---
//

// AdminListOrders is the handler for GET /v1/admin/orders?status=
func (h *Handlers) AdminListOrders(c *gin.Context) {
	limit, offset := pageParams(c)
	var userID int64
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "userId must be a positive integer"})
			return
		}
		userID = id
	}

	list, err := h.Orders.List(c.Request.Context(), orders.Filter{
		UserID: userID,
		Status: models.OrderStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// AdminGetOrder is the handler for GET /v1/admin/orders/:number
func (h *Handlers) AdminGetOrder(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

type statusUpdateRequest struct {
	Status              models.OrderStatus `json:"status" binding:"required,oneof=pending confirmed packed dispatched delivered cancelled"`
	TrackingNumber      *string            `json:"trackingNumber" binding:"omitempty,max=100"`
	Notes               *string            `json:"notes" binding:"omitempty,max=500"`
	EstimatedDeliveryAt *time.Time         `json:"estimatedDeliveryAt"`
}

// UpdateOrderStatus is the handler for PATCH /v1/admin/orders/:number/status
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	// 1. --- Bind & Validate Input ---
	var req statusUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	// 2. --- Apply the Transition ---
	o, err := h.Orders.Advance(c.Request.Context(), c.Param("number"), orders.StatusUpdate{
		Status:              req.Status,
		TrackingNumber:      req.TrackingNumber,
		Notes:               req.Notes,
		EstimatedDeliveryAt: req.EstimatedDeliveryAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Return Response ---
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order": o})
}
