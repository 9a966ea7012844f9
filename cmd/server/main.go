package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"payment_app_echo/internal/handlers"
	"payment_app_echo/internal/middleware"
	"payment_app_echo/internal/services"
)

// selectGateway picks the payment gateway implementation from the
// PAYMENT_GATEWAY environment variable. Toss is the default.
func selectGateway() (services.PaymentGateway, error) {
	name := os.Getenv("PAYMENT_GATEWAY")
	switch name {
	case "", "toss":
		return services.NewTossService(), nil
	case "midtrans":
		return services.NewMidtransGateway(), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", name)
	}
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment")
	}

	logger := services.NewLogger("payment-server")
	defer logger.Sync()

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}

	// Redis is optional; without it confirmations rely on the database's
	// conditional update alone.
	var locks *services.OrderLocker
	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		cache, err := services.NewRedisCache(redisURL)
		if err != nil {
			logger.Warn("redis unavailable, per-order locks disabled", zap.Error(err))
		} else {
			defer cache.Close()
			locks = services.NewOrderLocker(cache)
		}
	} else {
		logger.Warn("REDIS_URL not set, per-order locks disabled")
	}

	gateway, err := selectGateway()
	if err != nil {
		logger.Fatal("gateway configuration error", zap.Error(err))
	}
	logger.Info("payment gateway selected", zap.String("gateway", gateway.Name()))

	var notifier services.PaymentNotifier = services.NoopNotifier{}
	email := services.NewEmailService()
	if email.Configured() {
		notifier = services.NewEmailNotifier(email, logger)
	} else {
		logger.Info("SMTP not configured, email notifications disabled")
	}

	store := services.NewGormPaymentStore(db)
	payments := services.NewPaymentService(store, gateway, locks, notifier, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler(logger)

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())

	paymentHandler := handlers.NewPaymentHandler(payments, logger)
	paymentHandler.RegisterRoutes(e)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("server starting", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
