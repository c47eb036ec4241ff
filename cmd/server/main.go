package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmarroquin/fabmarket/internal/auth"
	"github.com/gmarroquin/fabmarket/internal/config"
	"github.com/gmarroquin/fabmarket/internal/db"
	"github.com/gmarroquin/fabmarket/internal/geometry"
	"github.com/gmarroquin/fabmarket/internal/handlers"
	"github.com/gmarroquin/fabmarket/internal/migrations"
	"github.com/gmarroquin/fabmarket/internal/notify"
	"github.com/gmarroquin/fabmarket/internal/orders"
	"github.com/gmarroquin/fabmarket/internal/payments"
	"github.com/gmarroquin/fabmarket/internal/pricing"
	"github.com/gmarroquin/fabmarket/internal/products"
	"github.com/gmarroquin/fabmarket/internal/storage"
	"github.com/gmarroquin/fabmarket/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := config.Load()

	tokenSecret := cfg.TokenSecret
	if tokenSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		tokenSecret = hex.EncodeToString(buf)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		return err
	}

	st := store.New(database)

	authSvc := auth.NewService(st, tokenSecret, cfg.TokenTTL)
	if err := authSvc.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
		return err
	}

	files := storage.NewDisk(cfg.UploadDir, cfg.PublicBaseURL, []byte(tokenSecret))
	extractor := geometry.NewClient(cfg.GeometryServiceURL, nil)
	gateway := payments.NewClient(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, nil)

	var producer *notify.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = notify.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		logger.Info("kafka notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	notifier := notify.New(producer, logger)

	rates := pricing.DefaultRates()

	productsSvc := products.NewService(st, files, extractor, rates, cfg.DefaultRoyaltyPercent, cfg.ModelURLTTL, logger)
	ordersSvc := orders.NewService(st, gateway, extractor, rates, cfg.Currency, cfg.StatusForwardOnly, cfg.PendingOrderTTL, notifier, logger)

	h := handlers.New(authSvc, productsSvc, ordersSvc, st, files, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepPendingOrders(ctx, ordersSvc, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

// sweepPendingOrders periodically expires orders whose payment never arrived.
func sweepPendingOrders(ctx context.Context, svc *orders.Service, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpirePending(ctx); err != nil {
				logger.Error("pending order sweep failed", "error", err)
			}
		}
	}
}
