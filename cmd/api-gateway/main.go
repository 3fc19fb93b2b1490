package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/Oerlinker/BackendAISi2/api/swagger"
	"github.com/Oerlinker/BackendAISi2/internal/app"
)

// @title Academic Risk API
// @version 1.0.0
// @description Grade forecasting, at-risk detection, recommendations and alerts.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, "api-gateway")
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	a.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.Log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.Cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	// A scan that outlives this is cut short by its own time budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("graceful shutdown failed", zap.Error(err))
	}
	a.Log.Info("server stopped")
}
