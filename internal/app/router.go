package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"autorent/internal/handler"
	"autorent/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	BookingHandler *handler.BookingHandler
	ClaimHandler   *handler.ClaimHandler
	WalletHandler  *handler.WalletHandler
	FundHandler    *handler.FundHandler
	RedisClient    *redis.Client // nil disables response replay
	NewRelicApp    *newrelic.Application
	RateLimiter    *middleware.RateLimiter
	Health         func() error
	Logger         *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.TransactionAttributes())
	}
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if deps.RateLimiter != nil {
		v1.Use(middleware.RateLimit(deps.RateLimiter))
	}
	v1.Use(middleware.Idempotency(deps.RedisClient, deps.Logger))
	{
		v1.POST("/cars", deps.BookingHandler.CreateCar)
		v1.POST("/quotes", deps.BookingHandler.Quote)

		bookings := v1.Group("/bookings")
		{
			bookings.POST("", deps.BookingHandler.Create)
			bookings.GET("/:id", deps.BookingHandler.Get)
			bookings.POST("/:id/approve", deps.BookingHandler.Approve)
			bookings.POST("/:id/reject", deps.BookingHandler.Reject)
			bookings.POST("/:id/retry-payment", deps.BookingHandler.RetryPayment)
			bookings.POST("/:id/start", deps.BookingHandler.Start)
			bookings.POST("/:id/return", deps.BookingHandler.Return)
			bookings.POST("/:id/inspection", deps.BookingHandler.Inspection)
			bookings.POST("/:id/cancel", deps.BookingHandler.Cancel)
			bookings.POST("/:id/no-show", deps.BookingHandler.NoShow)
			bookings.POST("/:id/complete", deps.BookingHandler.Complete)
			bookings.POST("/:id/complete-with-damages", deps.BookingHandler.CompleteWithDamages)
			bookings.POST("/:id/charge", deps.BookingHandler.Charge)
			bookings.POST("/:id/waterfall", deps.BookingHandler.Waterfall)
			bookings.POST("/:id/disputes", deps.ClaimHandler.Open)
		}

		claims := v1.Group("/claims")
		{
			claims.GET("/:id", deps.ClaimHandler.Get)
			claims.POST("/:id/review", deps.ClaimHandler.Review)
			claims.POST("/:id/resolve", deps.ClaimHandler.Resolve)
			claims.POST("/:id/reject", deps.ClaimHandler.Reject)
		}

		wallets := v1.Group("/wallets")
		{
			wallets.POST("/locks", deps.WalletHandler.Lock)
			wallets.POST("/unlock", deps.WalletHandler.Unlock)
			wallets.POST("/charges", deps.WalletHandler.Charge)
			wallets.POST("/deposits", deps.WalletHandler.Deposit)
			wallets.POST("/withdrawals", deps.WalletHandler.Withdraw)
			wallets.GET("/:userId", deps.WalletHandler.Balance)
			wallets.GET("/:userId/transactions", deps.WalletHandler.Transactions)
			wallets.POST("/:userId/reconcile", deps.WalletHandler.Reconcile)
			wallets.POST("/:userId/unfreeze", deps.WalletHandler.Unfreeze)
		}

		fgo := v1.Group("/fgo")
		{
			fgo.GET("", deps.FundHandler.Status)
			fgo.GET("/losses", deps.FundHandler.Losses)
			fgo.POST("/rebalance", deps.FundHandler.Rebalance)
		}
	}

	return router
}
