package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/grennMind/herbal-orders/internal/config"
	"github.com/grennMind/herbal-orders/internal/httpx"
	"github.com/grennMind/herbal-orders/internal/provider"
	"github.com/grennMind/herbal-orders/internal/repository"
	"github.com/grennMind/herbal-orders/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	pricing, err := parsePricing(cfg)
	if err != nil {
		return fmt.Errorf("parsePricing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pool.Ping: %w", err)
	}

	orders := repository.NewOrder(pool)
	inventory := repository.NewInventory(pool)
	catalog := repository.NewCatalog(pool)
	carts := repository.NewCart(pool)
	ledger := repository.NewLedger(pool)
	stores := repository.NewTxStores(pool)

	gateway := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	signer := provider.NewSigner(cfg.ProviderWebhookSecret)

	builder := service.NewBuilder(orders, inventory, catalog, carts, gateway, pricing,
		cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	orderService := service.NewOrders(orders)
	reconciler := service.NewReconciler(stores, orders, ledger, builder, signer)

	handler := httpx.NewHandler(builder, orderService, reconciler, carts)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpx.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
	}

	return nil
}

func parsePricing(cfg config.Config) (service.PricingPolicy, error) {
	var p service.PricingPolicy

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return p, fmt.Errorf("tax rate[%s]: %w", cfg.TaxRate, err)
	}

	threshold, err := decimal.NewFromString(cfg.FreeShippingThreshold)
	if err != nil {
		return p, fmt.Errorf("free shipping threshold[%s]: %w", cfg.FreeShippingThreshold, err)
	}

	flatFee, err := decimal.NewFromString(cfg.FlatShippingFee)
	if err != nil {
		return p, fmt.Errorf("flat shipping fee[%s]: %w", cfg.FlatShippingFee, err)
	}

	unit, err := currency.ParseISO(cfg.Currency)
	if err != nil {
		return p, fmt.Errorf("currency[%s] is not valid: %w", cfg.Currency, err)
	}

	return service.PricingPolicy{
		TaxRate:               taxRate,
		FreeShippingThreshold: threshold,
		FlatShippingFee:       flatFee,
		Currency:              unit,
	}, nil
}
