package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"walletexchange/src/auth"
	"walletexchange/src/book"
	"walletexchange/src/handler"
	"walletexchange/src/pricing"
	"walletexchange/src/repository"
)

func StartServer(port string, bookSvc *book.Service, adjuster *pricing.Adjuster) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Get("/depth", handler.DepthHandler(bookSvc))

	// Authenticated routes
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(repository.NewUserRepository()))
		pr.Post("/orders", handler.PlaceOrderHandler(bookSvc))
		pr.Get("/orders", handler.SearchOrdersHandler(bookSvc))
		pr.Delete("/orders/{orderID}", handler.CancelOrderHandler(bookSvc))
		pr.Get("/orders/{orderID}/price-history", handler.PriceHistoryHandler(bookSvc))
		pr.Delete("/orders/{orderID}/dynamic-pricing", handler.DisableDynamicPricingHandler(adjuster))
	})

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
