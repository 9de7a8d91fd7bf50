package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"bookstore/internal/service"
	"bookstore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles the components the HTTP layer exposes
type Services struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Books    *service.BookService
	Carts    *service.CartService
	Orders   *service.OrderService
	Payments *service.PaymentService
	Wishlist *service.WishlistService
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	authn  Authenticator
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(svc Services, checks map[string]Pinger) *Handler {
	h := &Handler{
		svc:    svc,
		checks: checks,
		logger: util.GetLogger(),
	}
	if svc.Auth != nil {
		h.authn = svc.Auth
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := h.authRequired()
	optional := h.optionalAuth()
	admin := adminOnly()

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/verify", h.verifyEmail)
		authGroup.POST("/resend-verification", h.resendVerification)
	}

	books := api.Group("/books")
	{
		books.GET("", h.listBooks)
		books.GET("/categories", h.listCategories)
		books.GET("/search", h.searchBooks)
		books.GET("/:bookId", optional, h.getBook)

		books.POST("/:bookId/rating", authed, h.rateBook)

		books.POST("/create", authed, admin, h.createBook)
		books.POST("/create-categories", authed, admin, h.createCategory)
		books.DELETE("/delete-categories/:categoryId", authed, admin, h.deleteCategory)
		books.PATCH("/update/:bookId", authed, admin, h.updateBook)
		books.DELETE("/delete/:bookId", authed, admin, h.deleteBook)
	}

	cart := api.Group("/cart", authed)
	{
		cart.GET("", h.getCart)
		cart.POST("/add-item", h.addCartItem)
		cart.PATCH("/update-item", h.updateCartItem)
		cart.DELETE("/remove-item", h.removeCartItem)
		cart.DELETE("/clear-all", h.clearCart)
	}

	order := api.Group("/order", authed)
	{
		order.POST("/place-order", h.placeOrder)
		order.POST("/buy-now", h.buyNow)
		order.GET("/get-my-orders", h.getMyOrders)
		order.GET("/get-all-orders", admin, h.getAllOrders)
	}

	payment := api.Group("/payment", authed)
	{
		payment.POST("", h.createPayment)
		payment.GET("/payments-history", h.getMyPayments)
		payment.GET("/admin/all-payments", admin, h.getAllPayments)
	}

	user := api.Group("/user", authed)
	{
		user.GET("/profile", h.getProfile)
		user.PATCH("/update-profile", h.updateProfile)
		user.POST("/change-password", h.requestPasswordChange)
		user.POST("/verify-token", h.confirmPasswordChange)

		user.GET("/admin/users", admin, h.listUsers)
		user.PATCH("/admin/users/:userId/block", admin, h.setUserBlocked)
		user.DELETE("/admin/users/:userId", admin, h.deleteUser)
	}

	wishlist := api.Group("/wishlist")
	{
		wishlist.GET("", authed, h.getWishlist)
		wishlist.POST("/adding", authed, h.addToWishlist)
		wishlist.DELETE("/removing", authed, h.removeFromWishlist)
		wishlist.GET("/true", optional, h.isInWishlist)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not ready",
			"dependencies": failed,
			"time":         time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
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
