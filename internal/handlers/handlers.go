package handlers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/coupons"
	"github.com/01moynul/taptosell-orders/internal/middleware"
	"github.com/01moynul/taptosell-orders/internal/notify"
	"github.com/01moynul/taptosell-orders/internal/orders"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	Orders  *orders.Manager
	Coupons *coupons.Ledger
	Inbox   notify.Inbox
}

var couponCodePattern = regexp.MustCompile(`^\s*[A-Za-z0-9_-]{3,32}\s*$`)

// RegisterValidators adds the custom binding rules to gin's validator.
// It is safe to call more than once.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("handlers: unexpected validator engine")
	}
	return v.RegisterValidation("couponcode", func(fl validator.FieldLevel) bool {
		return couponCodePattern.MatchString(fl.Field().String())
	})
}

// statusFor maps an error kind to the HTTP status the client sees.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindCoupon:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPaymentVerification:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": code, "message": text}. Internal failures are
// logged with the request id and reported without details.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		middleware.Logger(c).WithError(err).WithField("kind", kind.String()).Error("request failed")
		c.JSON(status, gin.H{"error": apperr.CodeOf(err), "message": "Internal server error"})
		return
	}

	var ae *apperr.Error
	message := err.Error()
	if errors.As(err, &ae) {
		message = ae.Message
	}
	c.JSON(status, gin.H{"error": apperr.CodeOf(err), "message": message})
}

// bindJSON binds the request body and answers 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return false
	}
	return true
}
