package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Users     *service.AccountService
	Agents    *service.AccountService
	Catalog   *service.CatalogService
	Cart      *service.CartService
	Favorites *service.FavoritesService
	Addresses *service.AddressService
	Orders    *service.OrderService
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options tune the HTTP layer. Zero values disable the feature.
type Options struct {
	Limiter        RateLimiter
	OTPLimit       RateLimitPolicy
	LoginLimit     RateLimitPolicy
	RequestTimeout time.Duration
	Checks         map[string]ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	svc  Services
	opts Options
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	return &Handler{svc: svc, opts: opts}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())
	router.Use(timeoutMiddleware(h.opts.RequestTimeout))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	h.accountRoutes(v1, h.svc.Users)
	h.accountRoutes(v1.Group("/agent"), h.svc.Agents)

	agentOnly := requireAuth(h.svc.Agents)
	customer := requireAuth(h.svc.Users)
	maybeCustomer := optionalAuth(h.svc.Users)

	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/demanded-products", h.listDemanded)
		v1.POST("/upload", agentOnly, h.uploadProduct)
		v1.POST("/replace-demanded-product", agentOnly, h.replaceDemanded)
	}

	{
		v1.POST("/cart", maybeCustomer, h.addToCart)
		v1.GET("/cart/:user_id", maybeCustomer, h.listCart)
		v1.PUT("/cart/:user_id/:product_id", maybeCustomer, h.updateCart)
		v1.DELETE("/cart/:user_id/:product_id", maybeCustomer, h.removeFromCart)

		v1.POST("/favorites", maybeCustomer, h.addFavorite)
		v1.GET("/favorites/:user_id", maybeCustomer, h.listFavorites)
		v1.DELETE("/favorites/:user_id/:product_id", maybeCustomer, h.removeFavorite)
	}

	{
		v1.POST("/user/addresses", maybeCustomer, h.createAddress)
		v1.GET("/user/addresses/:user_id", maybeCustomer, h.listAddresses)
		v1.PUT("/user/addresses/:id", maybeCustomer, h.updateAddress)
		v1.DELETE("/user/addresses/:id", maybeCustomer, h.deleteAddress)
		v1.GET("/addresses/:id", maybeCustomer, h.getAddress)
		v1.PUT("/addresses/set-default", maybeCustomer, h.setDefaultAddress)
	}

	{
		v1.POST("/orders", customer, h.createOrder)
		v1.POST("/orders/public", maybeCustomer, h.createOrderPublic)
		v1.POST("/orders/confirm-payment", maybeCustomer, h.confirmPayment)
		v1.GET("/orders/user/:user_id", maybeCustomer, h.listOrders)
		v1.GET("/orders/:id", maybeCustomer, h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.opts.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid " + name)
	}
	return id, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}
