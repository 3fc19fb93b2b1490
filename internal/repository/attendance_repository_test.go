package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRepositoryStatsBetweenEmptyWindow(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 90)

	mock.ExpectQuery("FROM attendances").
		WithArgs("stu-1", "sub-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"present", "total"}).AddRow(0, 0))

	stats, err := repo.StatsBetween(context.Background(), "stu-1", "sub-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.Percentage())
}

func TestAttendanceRepositoryAbsencesBySubject(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	since := time.Now().UTC()

	mock.ExpectQuery(`HAVING COUNT\(\*\) >= \$3`).
		WithArgs("stu-1", since, 2).
		WillReturnRows(sqlmock.NewRows([]string{"subject_id", "subject_name", "absences"}).AddRow("sub-1", "Math", 3))

	rows, err := repo.AbsencesBySubjectSince(context.Background(), "stu-1", since, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Absences)
}
