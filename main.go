package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	appcart "github.com/stridewear/shoestore/internal/application/cart"
	appcatalog "github.com/stridewear/shoestore/internal/application/catalog"
	apporder "github.com/stridewear/shoestore/internal/application/order"
	httptransport "github.com/stridewear/shoestore/internal/infrastructure/http"
	"github.com/stridewear/shoestore/internal/infrastructure/id"
	inventoryworker "github.com/stridewear/shoestore/internal/infrastructure/inventory/worker"
	"github.com/stridewear/shoestore/internal/infrastructure/memory"
	"github.com/stridewear/shoestore/internal/infrastructure/outbox"
	"github.com/stridewear/shoestore/internal/infrastructure/razorpay"
	"github.com/stridewear/shoestore/internal/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	serviceName := getenvDefault("SERVICE_NAME", "shoestore")
	env := getenvDefault("ENV", "dev")
	baseLogger := logging.MustNewLogger(serviceName, env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	productRepo := memory.NewProductRepository()
	cartRepo := memory.NewCartRepository()
	orderRepo := memory.NewOrderRepository()
	idGenerator := id.NewUUIDGenerator()

	gateway, err := razorpay.NewClient(razorpay.Config{
		KeyID:       os.Getenv("RAZORPAY_KEY_ID"),
		KeySecret:   os.Getenv("RAZORPAY_KEY_SECRET"),
		BaseURL:     os.Getenv("RAZORPAY_BASE_URL"),
		Currency:    getenvDefault("STORE_CURRENCY", "INR"),
		DisplayName: getenvDefault("STORE_NAME", "Shoe Store"),
		LogoURL:     os.Getenv("SITE_LOGO"),
	}, baseLogger)
	if err != nil {
		baseLogger.Fatal("payment_gateway_init_failed", zap.Error(err))
	}

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"route", "method", "code"},
	)
	httpDurations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP request handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	prometheus.MustRegister(httpRequests, httpDurations)

	// In-memory event bus stands in for a durable outbox; the inventory
	// worker restocks reserved quantities when orders are cancelled.
	bus := outbox.NewBus(baseLogger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	orderService := apporder.NewService(orderRepo, productRepo, cartRepo, gateway, idGenerator, bus)
	cartService := appcart.NewService(cartRepo, productRepo)
	catalogService := appcatalog.NewService(productRepo, idGenerator)

	restockWorker := inventoryworker.New(bus, productRepo)
	restockWorker.Start()

	handler := httptransport.NewHandler(orderService, cartService, catalogService, gateway, baseLogger, httpRequests, httpDurations)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    ":" + getenvDefault("PORT", "8080"),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Error("http_server_error",
				zap.Error(err),
			)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		baseLogger.Info("http_server_stopped")
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
