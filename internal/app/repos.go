package app

import (
	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/repository"
	"github.com/Oerlinker/BackendAISi2/pkg/storage"
)

// Repos groups the persistence adapters shared by every binary.
type Repos struct {
	Users         *repository.UserRepository
	Subjects      *repository.SubjectRepository
	Grades        *repository.GradeRepository
	Attendance    *repository.AttendanceRepository
	Participation *repository.ParticipationRepository
	Predictions   *repository.PredictionRepository
	Notifications *repository.NotificationRepository
	TrainingRuns  *repository.TrainingRunRepository
	Artifacts     *repository.ModelArtifactRepository
}

func wireRepos(db *sqlx.DB, artifacts *storage.LocalStorage) Repos {
	return Repos{
		Users:         repository.NewUserRepository(db),
		Subjects:      repository.NewSubjectRepository(db),
		Grades:        repository.NewGradeRepository(db),
		Attendance:    repository.NewAttendanceRepository(db),
		Participation: repository.NewParticipationRepository(db),
		Predictions:   repository.NewPredictionRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		TrainingRuns:  repository.NewTrainingRunRepository(db),
		Artifacts:     repository.NewModelArtifactRepository(artifacts),
	}
}
