package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/app"
)

// notifier refreshes stale predictions and turns risk and absence signals
// into inbox notifications. With -every it keeps running on a ticker.
func main() {
	every := flag.Duration("every", 0, "repeat the pass on this interval (0 runs once)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, "notifier")
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	if *every <= 0 {
		ok := runOnce(ctx, a)
		a.Close()
		if !ok {
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		runOnce(ctx, a)
		select {
		case <-ctx.Done():
			a.Close()
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, a *app.App) bool {
	summary, err := a.Services.Dispatcher.Run(ctx)
	if err != nil {
		a.Log.Error("dispatch failed", zap.Error(err))
		return false
	}
	a.Log.Info("dispatch finished",
		zap.Int("predictions_generated", summary.PredictionsGenerated),
		zap.Int("predictions_failed", summary.PredictionsFailed),
		zap.Int("notifications", summary.Notifications),
		zap.Bool("partial", summary.Partial),
	)
	return true
}
