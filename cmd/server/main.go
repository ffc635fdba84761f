package main // Entry point package

import (
	"context"
	"log" // Logging library
	"time"

	"github.com/joho/godotenv"    // .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/taqo-app/taqo-backend/internal/config"
	"github.com/taqo-app/taqo-backend/internal/database"
	"github.com/taqo-app/taqo-backend/internal/gateway"
	"github.com/taqo-app/taqo-backend/internal/handler"
	"github.com/taqo-app/taqo-backend/internal/notify"
	"github.com/taqo-app/taqo-backend/internal/queue"
	"github.com/taqo-app/taqo-backend/internal/repository"
	"github.com/taqo-app/taqo-backend/internal/router"
	"github.com/taqo-app/taqo-backend/internal/service"
	"github.com/taqo-app/taqo-backend/internal/sweep"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}
	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database open: %v", err)
	}
	defer db.Close()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.InitSchema(initCtx, db); err != nil {
		log.Fatalf("database schema: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, degrading: no rate limiting, per-call gateway tokens")
	}

	spotRepo := repository.NewSpotRepo(db)
	txnRepo := repository.NewTransactionRepo(db)
	userRepo := repository.NewUserRepo(db)

	fanout := notify.NewFanout(cfg.AmqpURL)

	stripeGW := gateway.NewStripe(cfg.StripeAPIKey)
	paypalGW := gateway.NewPayPal(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalSecret,
		cfg.PayPalWebhookID, cfg.HTTPTimeout, rdb)

	spotSvc := service.NewSpotService(spotRepo, fanout, cfg.ServiceFee)
	bookingSvc := service.NewBookingService(spotSvc, spotRepo, txnRepo, userRepo,
		stripeGW, paypalGW, fanout, cfg.OpsEmail)

	// Background reconciliation and notification delivery.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sweeper := sweep.NewSweeper(spotRepo, spotSvc, txnRepo, bookingSvc, fanout, cfg.OpsEmail)
	go sweeper.Run(ctx)

	consumer := queue.NewConsumer(cfg.AmqpURL,
		notify.NewPush(cfg.FCMServerKey, cfg.HTTPTimeout),
		notify.NewMailgun(cfg.MailgunURL, cfg.MailgunAPIKey, cfg.OutboundEmail, cfg.HTTPTimeout),
		userRepo)
	go func() {
		if err := consumer.StartPushConsumer(ctx); err != nil {
			log.Printf("push consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := consumer.StartEmailConsumer(ctx); err != nil {
			log.Printf("email consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	wh := handler.NewWebhookHandler(bookingSvc, cfg.StripeWebhookSecret,
		func(c echo.Context, body []byte) error {
			return paypalGW.VerifyWebhook(c.Request().Context(), c.Request().Header, body)
		})
	router.RegisterRoutes(e, wh)
	router.RegisterAPI(e,
		handler.NewSpotHandler(spotSvc),
		handler.NewBookingHandler(bookingSvc),
		handler.NewAccountHandler(bookingSvc),
		cfg.JWTSecret, rdb)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
