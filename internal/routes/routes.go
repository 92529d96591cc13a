package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/01moynul/taptosell-orders/internal/handlers"
	"github.com/01moynul/taptosell-orders/internal/middleware"
)

// Options carries the router's non-handler dependencies.
type Options struct {
	Tokens     *auth.Tokens
	CORSOrigin string
	// CallbackLimiter throttles the public payment callback. Nil disables it.
	CallbackLimiter *rate.Limiter
}

func SetupRouter(h *handlers.Handlers, opts Options) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	// --- APPLY THE CORS GUARD ---
	router.Use(middleware.CORS(opts.CORSOrigin))

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Payment Gateway Callback (Public, signed) ---
		callback := []gin.HandlerFunc{}
		if opts.CallbackLimiter != nil {
			callback = append(callback, middleware.RateLimit(opts.CallbackLimiter))
		}
		callback = append(callback, h.PaymentCallback)
		v1.POST("/payments/callback", callback...)

		// --- Protected Routes (Login Required) ---
		authed := v1.Group("/")
		authed.Use(middleware.AuthMiddleware(opts.Tokens))
		{
			authed.POST("/checkout/quote", h.QuoteCheckout)
			authed.POST("/checkout", h.Checkout)

			authed.GET("/orders", h.GetMyOrders)
			authed.GET("/orders/:number", h.GetMyOrder)
			authed.POST("/orders/:number/cancel", h.CancelMyOrder)

			// --- Notification Routes ---
			authed.GET("/notifications", h.GetMyNotifications)
			authed.PATCH("/notifications/:id/read", h.MarkNotificationAsRead)
		}

		// --- Admin-Only Routes ---
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(opts.Tokens))
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("/orders", h.AdminListOrders)
			admin.GET("/orders/:number", h.AdminGetOrder)
			admin.PATCH("/orders/:number/status", h.UpdateOrderStatus)

			admin.POST("/coupons", h.CreateCoupon)
			admin.GET("/coupons", h.ListCoupons)
			admin.GET("/coupons/:code", h.GetCoupon)
			admin.PUT("/coupons/:code", h.UpdateCoupon)
			admin.PATCH("/coupons/:code/active", h.SetCouponActive)
		}
	}

	return router, nil
}
