package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/app"
	"github.com/Oerlinker/BackendAISi2/internal/models"
	"github.com/Oerlinker/BackendAISi2/internal/service"
)

// trainer fits the general model and every subject model, writes the
// artifacts and records a training run. Running API processes pick the new
// artifacts up after POST /models/reload.
func main() {
	subject := flag.String("subject", "", "retrain a single subject")
	generalOnly := flag.Bool("general-only", false, "train only the cross-subject model")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, "trainer")
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	run, err := a.Services.Training.Train(ctx, service.TrainModelRequest{SubjectID: *subject, GeneralOnly: *generalOnly})
	if err != nil {
		a.Log.Error("training failed", zap.Error(err))
		a.Close()
		os.Exit(1)
	}

	a.Log.Info("training finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Bool("general_trained", run.GeneralTrained),
		zap.Int("subjects_trained", run.SubjectsTrained),
		zap.Int("subjects_skipped", run.SubjectsSkipped),
		zap.Int("grades", run.GradeCount),
	)
	a.Close()
	if run.Status == models.TrainingRunFailed {
		os.Exit(1)
	}
}
