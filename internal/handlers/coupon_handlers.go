package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/taptosell-orders/internal/coupons"
)

//
// --- Coupon Admin ---
//

// CreateCoupon is the handler for POST /v1/admin/coupons
func (h *Handlers) CreateCoupon(c *gin.Context) {
	// 1. --- Bind & Validate Input ---
	var def coupons.Definition
	if !bindJSON(c, &def) {
		return
	}

	// 2. --- Create Coupon in Ledger ---
	cp, err := h.Coupons.Create(c.Request.Context(), def)
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Return Response ---
	c.JSON(http.StatusCreated, gin.H{"message": "Coupon created", "coupon": cp})
}

// ListCoupons is the handler for GET /v1/admin/coupons
func (h *Handlers) ListCoupons(c *gin.Context) {
	list, err := h.Coupons.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": list})
}

// GetCoupon is the handler for GET /v1/admin/coupons/:code
func (h *Handlers) GetCoupon(c *gin.Context) {
	cp, err := h.Coupons.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon": cp})
}

// UpdateCoupon is the handler for PUT /v1/admin/coupons/:code
// The code in the body, if any, is ignored; codes never change.
func (h *Handlers) UpdateCoupon(c *gin.Context) {
	// 1. --- Bind & Validate Input ---
	var def coupons.Definition
	if !bindJSON(c, &def) {
		return
	}

	// 2. --- Apply Edit (usage counter is never overwritten) ---
	cp, err := h.Coupons.Update(c.Request.Context(), c.Param("code"), def)
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Return Response ---
	c.JSON(http.StatusOK, gin.H{"message": "Coupon updated", "coupon": cp})
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetCouponActive is the handler for PATCH /v1/admin/coupons/:code/active
func (h *Handlers) SetCouponActive(c *gin.Context) {
	var req activeRequest
	if !bindJSON(c, &req) {
		return
	}

	cp, err := h.Coupons.SetActive(c.Request.Context(), c.Param("code"), *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon": cp})
}
