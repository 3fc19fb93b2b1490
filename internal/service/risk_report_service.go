package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/export"
)

type riskScanner interface {
	ScanRisk(ctx context.Context, filter models.RiskScanFilter) (*models.RiskScanResult, error)
}

// RiskReport is a rendered at-risk export.
type RiskReport struct {
	Filename    string
	ContentType string
	Body        []byte
	Partial     bool
}

var riskReportHeaders = []string{"Student", "Student ID", "Course", "Subject", "Forecast", "Level", "Confidence"}

// RiskReportService renders at-risk scans as downloadable documents.
type RiskReportService struct {
	scanner   riskScanner
	renderers map[string]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewRiskReportService wires CSV and PDF renderers.
func NewRiskReportService(scanner riskScanner, logger *zap.Logger) *RiskReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	pdf := export.NewPDFExporter()
	pdf.Widths = map[string]float64{"Student": 55, "Student ID": 60, "Subject": 50}
	return &RiskReportService{
		scanner: scanner,
		renderers: map[string]export.Renderer{
			"csv": export.NewCSVExporter(),
			"pdf": pdf,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Export scans and renders the result in format (csv or pdf).
func (s *RiskReportService) Export(ctx context.Context, filter models.RiskScanFilter, format string) (*RiskReport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	result, err := s.scanner.ScanRisk(ctx, filter)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(RiskDataset(result))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("risk report exported", zap.String("format", format), zap.Int("students", len(result.Students)), zap.Bool("partial", result.Partial))
	return &RiskReport{
		Filename:    fmt.Sprintf("students-at-risk-%s.%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
		Partial:     result.Partial,
	}, nil
}

// RiskDataset flattens a scan into one row per at-risk subject.
func RiskDataset(result *models.RiskScanResult) export.Dataset {
	subtitle := fmt.Sprintf("Threshold %.2f, %d of %d students scanned", result.Threshold, result.ScannedStudents, result.TotalStudents)
	if result.Partial {
		subtitle += " (partial)"
	}
	data := export.Dataset{
		Title:    "Students at risk",
		Subtitle: subtitle,
		Headers:  riskReportHeaders,
	}
	for _, student := range result.Students {
		for _, subject := range student.Subjects {
			data.Rows = append(data.Rows, map[string]string{
				"Student":    student.StudentName,
				"Student ID": student.StudentID,
				"Course":     student.CourseID,
				"Subject":    subject.SubjectName,
				"Forecast":   fmt.Sprintf("%.2f", subject.Value),
				"Level":      string(subject.Level),
				"Confidence": string(subject.Confidence),
			})
		}
	}
	return data
}
