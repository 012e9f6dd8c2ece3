package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fanzone-tickets/config"
	"fanzone-tickets/internal/handlers"
	"fanzone-tickets/internal/services"
	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/services/gateway/paystack"
	"fanzone-tickets/internal/services/tokenvault"
	"fanzone-tickets/internal/store"
	_ "fanzone-tickets/migrations"
	"fanzone-tickets/monitoring"
	"fanzone-tickets/security"
	"fanzone-tickets/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	vault, err := newVault(cfg)
	if err != nil {
		return err
	}

	registry := gateway.NewRegistry()
	registry.Register(paystack.New(&paystack.Config{
		BaseURL:       cfg.PaystackBaseURL,
		SecretKey:     cfg.PaystackSecretKey,
		WebhookSecret: cfg.WebhookKey(),
		Timeout:       cfg.ProviderTimeout,
	}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: false,
	})

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		logger := app.Logger()

		db, ok := app.NonconcurrentDB().(*dbx.DB)
		if !ok {
			return fmt.Errorf("unexpected database handle %T", app.NonconcurrentDB())
		}
		st := store.New(db)

		// Initialize services
		wallet := services.NewWalletService(st, logger)
		tickets := services.NewTicketService(st, vault, wallet, cfg.CoinValueMinor, logger)
		memberships := services.NewMembershipService(st, wallet, services.MembershipConfig{
			TierPrices:           cfg.MembershipTierPrices,
			BonusCoinsPerMonth:   cfg.MembershipBonusCoinsPerMonth,
			AmountToleranceMinor: cfg.AmountToleranceMinor,
		}, logger)
		payments := services.NewPaymentService(st, registry, tickets, memberships, services.PaymentConfig{
			RefPrefix:      cfg.PaymentRefPrefix,
			CallbackURL:    cfg.PaystackCallbackURL,
			CoinValueMinor: cfg.CoinValueMinor,
		}, logger)
		reconciler := services.NewReconciler(st, registry, tickets, memberships, wallet,
			services.NewPubNubNotifier(pn, logger),
			services.ReconcilerConfig{
				AmountToleranceMinor: cfg.AmountToleranceMinor,
				CoinValueMinor:       cfg.CoinValueMinor,
			}, logger)
		admission := services.NewAdmissionService(st, vault, logger)
		events := services.NewEventService(st, logger)
		guard := services.NewPurchaseGuard(redisClient, cfg.PurchaseDedupWindow, logger)
		limiter := security.NewRateLimiter(redisClient, logger)

		// Initialize handlers
		webhookHandler := handlers.NewWebhookHandler(reconciler, paystack.Name, logger)
		ticketHandler := handlers.NewTicketHandler(tickets, payments, reconciler, guard, logger)
		checkinHandler := handlers.NewCheckinHandler(admission, logger)
		paymentHandler := handlers.NewPaymentHandler(payments, reconciler, tickets, logger)
		walletHandler := handlers.NewWalletHandler(wallet, memberships, logger)
		adminHandler := handlers.NewAdminHandler(tickets, reconciler, admission, logger)
		eventHandler := handlers.NewEventHandler(events, tickets, logger)

		purchaseLimit := limiter.Limit("purchase", cfg.PurchaseRateLimit, time.Minute)
		checkinLimit := limiter.Limit("checkin", cfg.CheckinRateLimit, time.Minute)

		// Provider webhooks
		se.Router.POST("/webhook", webhookHandler.Receive)

		api := se.Router.Group("/api/v1")
		api.POST("/payments/webhook", webhookHandler.Receive)

		// Public catalogue
		api.GET("/events", eventHandler.List)
		api.GET("/events/{id}", eventHandler.Get)

		// Fan endpoints
		fan := api.Group("")
		fan.BindFunc(security.RequireAuth)
		fan.POST("/tickets/purchase", ticketHandler.Purchase).
			BindFunc(limiter.RejectBots, purchaseLimit)
		fan.GET("/tickets", ticketHandler.List)
		fan.POST("/tickets/{id}/token", ticketHandler.ReissueToken)
		fan.POST("/payments/initialize", paymentHandler.Initialize).BindFunc(purchaseLimit)
		fan.POST("/payments/verify", paymentHandler.Verify)
		fan.GET("/wallet", walletHandler.Get)

		// Gate endpoints
		api.POST("/checkin", checkinHandler.Checkin).
			BindFunc(security.RequireRole(security.RoleAdmin, security.RoleScanner), checkinLimit)

		// Admin endpoints
		admin := api.Group("/admin")
		admin.BindFunc(security.RequireRole(security.RoleAdmin))
		admin.POST("/tickets/{id}/cancel", adminHandler.CancelTicket)
		admin.POST("/payments/{reference}/retry", adminHandler.RetryPayment)
		admin.POST("/events", eventHandler.Create)
		admin.PATCH("/events/{id}", eventHandler.SetStatus)
		admin.GET("/events/{id}/scans", adminHandler.ScanHistory)

		if cfg.EnableMetrics {
			se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
			go monitoring.NewMonitor(events, logger).Run(ctx)
		}

		// Health check
		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := healthCheck(e.Request.Context(), st, redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		logger.Info("server routes registered", "providers", registry.Names())

		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("shutdown signal received, stopping background tasks")
		cancel()
		return e.Next()
	})

	// Start server
	return app.Start()
}

// newVault builds the token vault. Development runs without TOKEN_SECRET get
// a random per-process secret, so issued tokens stop verifying on restart.
func newVault(cfg *config.Config) (*tokenvault.Vault, error) {
	secret := cfg.TokenSecret
	if secret == "" {
		code, err := utils.GenerateCode(32)
		if err != nil {
			return nil, err
		}
		secret = code
		slog.Warn("TOKEN_SECRET not set, using an ephemeral token secret", "environment", cfg.Environment)
	}
	return tokenvault.New(secret, tokenvault.WithTTL(cfg.TokenTTL))
}

func healthCheck(ctx context.Context, st *store.Store, redisClient redis.Cmdable) error {
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return utils.RedisHealthCheck(ctx, redisClient)
}
