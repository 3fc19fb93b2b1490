package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type riskScannerStub struct {
	result *models.RiskScanResult
	filter models.RiskScanFilter
}

func (s *riskScannerStub) ScanRisk(ctx context.Context, filter models.RiskScanFilter) (*models.RiskScanResult, error) {
	s.filter = filter
	return s.result, nil
}

func sampleScan() *models.RiskScanResult {
	return &models.RiskScanResult{
		Partial:         true,
		Threshold:       60,
		TotalStudents:   3,
		ScannedStudents: 2,
		Students: []models.AtRiskStudent{{
			StudentID:   "stu-1",
			StudentName: "Ana Rojas",
			CourseID:    "course-1",
			Subjects: []models.AtRiskSubject{
				{SubjectID: "math", SubjectName: "Mathematics", Value: 41.5, Level: models.LevelLow, Confidence: models.ConfidenceLow},
				{SubjectID: "bio", SubjectName: "Biology", Value: 55, Level: models.LevelLow, Confidence: models.ConfidenceHigh},
			},
		}},
		GeneratedAt: time.Now(),
	}
}

func TestRiskReportCSV(t *testing.T) {
	scanner := &riskScannerStub{result: sampleScan()}
	svc := NewRiskReportService(scanner, nil)

	report, err := svc.Export(context.Background(), models.RiskScanFilter{CourseID: "course-1"}, "CSV")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", report.ContentType)
	assert.True(t, strings.HasSuffix(report.Filename, ".csv"))
	assert.True(t, report.Partial)
	assert.Equal(t, "course-1", scanner.filter.CourseID)

	lines := strings.Split(strings.TrimSpace(string(report.Body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Student ID,Course,Subject,Forecast,Level,Confidence", lines[0])
	assert.Equal(t, "Ana Rojas,stu-1,course-1,Mathematics,41.50,BAJO,LOW", lines[1])
}

func TestRiskReportPDFAndUnknownFormat(t *testing.T) {
	svc := NewRiskReportService(&riskScannerStub{result: sampleScan()}, nil)

	report, err := svc.Export(context.Background(), models.RiskScanFilter{}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.True(t, strings.HasPrefix(string(report.Body), "%PDF"))

	_, err = svc.Export(context.Background(), models.RiskScanFilter{}, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRiskDatasetSubtitleMarksPartial(t *testing.T) {
	data := RiskDataset(sampleScan())
	assert.Contains(t, data.Subtitle, "(partial)")
	assert.Len(t, data.Rows, 2)
}
