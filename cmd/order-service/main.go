package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/api"
	"github.com/Cheertaboi/storefront-order-service/internal/api/middleware"
	"github.com/Cheertaboi/storefront-order-service/internal/cache"
	"github.com/Cheertaboi/storefront-order-service/internal/config"
	"github.com/Cheertaboi/storefront-order-service/internal/repository"
	"github.com/Cheertaboi/storefront-order-service/internal/service"
	"github.com/Cheertaboi/storefront-order-service/pkg/db"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("order-service stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	conn, err := db.NewPostgresConnection(ctx, cfg.Database, zl)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Server.AutoMigrate {
		if err := db.Migrate(ctx, conn); err != nil {
			return err
		}
		zl.Info("schema applied")
	}

	uow := db.NewTxRunner(conn)
	products := repository.NewProductRepo()

	coupons, err := service.NewCouponService(service.CouponServiceDeps{
		Coupons:    repository.NewCouponRepo(),
		Usage:      repository.NewUsageRepo(),
		UnitOfWork: uow,
		Cache:      cache.NewCouponCache(cfg.Coupons.CacheTTL),
	})
	if err != nil {
		return err
	}
	orders, err := service.NewOrderService(service.OrderServiceDeps{
		UnitOfWork: uow,
		Products:   products,
		Orders:     repository.NewOrderRepo(),
		Items:      repository.NewItemRepo(),
		Customers:  repository.NewCustomerRepo(),
		Coupons:    coupons,
	})
	if err != nil {
		return err
	}

	handler := api.NewRouter(api.Deps{
		Orders:   orders,
		Coupons:  coupons,
		Auth:     middleware.NewAuthenticator(cfg.Auth),
		Webhooks: cfg.Webhooks,
		Logger:   zl,
		Ping:     uow.Ping,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zl.Error("http server shutdown", zap.Error(err))
		}
		close(idleConnsClosed)
	}()

	zl.Info("starting order-service", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-idleConnsClosed
	zl.Info("server stopped")
	return nil
}
