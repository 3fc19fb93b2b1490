package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	"github.com/Oerlinker/BackendAISi2/internal/service"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/response"
)

type predictionService interface {
	Generate(ctx context.Context, req service.GeneratePredictionRequest) (*service.PredictionResult, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Prediction, error)
	List(ctx context.Context, filter models.PredictionFilter, actor *models.JWTClaims) ([]models.Prediction, error)
	ScanRisk(ctx context.Context, filter models.RiskScanFilter) (*models.RiskScanResult, error)
}

type recommendationService interface {
	ForPrediction(ctx context.Context, predictionID string, actor *models.JWTClaims) (*models.RecommendationSet, error)
}

type riskExporter interface {
	Export(ctx context.Context, filter models.RiskScanFilter, format string) (*service.RiskReport, error)
}

// PredictionHandler exposes forecasting, risk scan and recommendation endpoints.
type PredictionHandler struct {
	predictions     predictionService
	recommendations recommendationService
	exports         riskExporter
}

// NewPredictionHandler constructs the handler.
func NewPredictionHandler(predictions predictionService, recommendations recommendationService, exports riskExporter) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, recommendations: recommendations, exports: exports}
}

type alreadyFreshResponse struct {
	Message    string             `json:"message"`
	Prediction *models.Prediction `json:"prediction"`
}

// Generate godoc
// @Summary Generate a prediction for a student and subject
// @Tags Predictions
// @Accept json
// @Produce json
// @Param payload body service.GeneratePredictionRequest true "Student and subject"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /predictions/generate [post]
func (h *PredictionHandler) Generate(c *gin.Context) {
	var req service.GeneratePredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent && req.StudentID != "" && req.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students can only forecast themselves"))
		return
	}
	result, err := h.predictions.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Created {
		response.Created(c, result.Prediction)
		return
	}
	response.JSON(c, http.StatusOK, alreadyFreshResponse{Message: "already fresh", Prediction: result.Prediction}, nil)
}

// AtRisk godoc
// @Summary Scan students under the risk threshold
// @Tags Predictions
// @Produce json
// @Param course_id query string false "Course filter"
// @Param subject_id query string false "Subject filter"
// @Param time_budget query string false "Budget in seconds or as a duration (e.g. 30s)"
// @Success 200 {object} response.Envelope
// @Router /predictions/at-risk [get]
func (h *PredictionHandler) AtRisk(c *gin.Context) {
	filter, err := riskFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.predictions.ScanRisk(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"partial": result.Partial})
}

// ExportAtRisk godoc
// @Summary Download the at-risk scan as CSV or PDF
// @Tags Predictions
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Param course_id query string false "Course filter"
// @Param subject_id query string false "Subject filter"
// @Param time_budget query string false "Budget in seconds or as a duration"
// @Success 200 {file} file
// @Router /predictions/at-risk/export [get]
func (h *PredictionHandler) ExportAtRisk(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export not configured"))
		return
	}
	filter, err := riskFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.exports.Export(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", report.Filename))
	c.Header("Cache-Control", "no-store")
	if report.Partial {
		c.Header("X-Scan-Partial", "true")
	}
	c.Data(http.StatusOK, report.ContentType, report.Body)
}

// List godoc
// @Summary List predictions visible to the caller
// @Tags Predictions
// @Produce json
// @Param student_id query string false "Student filter"
// @Param subject_id query string false "Subject filter"
// @Param course_id query string false "Course filter"
// @Param level query string false "Comma separated levels (BAJO,MEDIO,ALTO)"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /predictions [get]
func (h *PredictionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.PredictionFilter{
		StudentID: c.Query("student_id"),
		SubjectID: c.Query("subject_id"),
		CourseID:  c.Query("course_id"),
	}
	if raw := c.Query("level"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			level := models.PerformanceLevel(strings.ToUpper(strings.TrimSpace(part)))
			switch level {
			case models.LevelLow, models.LevelMedium, models.LevelHigh:
				filter.Levels = append(filter.Levels, level)
			default:
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown level "+part))
				return
			}
		}
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil {
		filter.Limit = limit
	}
	items, err := h.predictions.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get prediction by id
// @Tags Predictions
// @Produce json
// @Param id path string true "Prediction ID"
// @Success 200 {object} response.Envelope
// @Router /predictions/{id} [get]
func (h *PredictionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	prediction, err := h.predictions.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prediction, nil)
}

// Recommendations godoc
// @Summary Recommendations for a prediction
// @Tags Predictions
// @Produce json
// @Param id path string true "Prediction ID"
// @Success 200 {object} response.Envelope
// @Router /predictions/{id}/recommendations [get]
func (h *PredictionHandler) Recommendations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	set, err := h.recommendations.ForPrediction(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, set, nil)
}

func riskFilterFromQuery(c *gin.Context) (models.RiskScanFilter, error) {
	filter := models.RiskScanFilter{
		CourseID:  strings.TrimSpace(c.Query("course_id")),
		SubjectID: strings.TrimSpace(c.Query("subject_id")),
	}
	budget, err := parseTimeBudget(c.Query("time_budget"))
	if err != nil {
		return filter, err
	}
	filter.TimeBudget = budget
	return filter, nil
}

const maxBudgetSeconds = int64(math.MaxInt64 / int64(time.Second))

// parseTimeBudget accepts whole seconds ("30") or a Go duration ("1m30s").
func parseTimeBudget(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if seconds <= 0 {
			return 0, appErrors.Clone(appErrors.ErrValidation, "time_budget must be positive")
		}
		if seconds > maxBudgetSeconds {
			return 0, appErrors.Clone(appErrors.ErrValidation, "time_budget too large")
		}
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid time_budget")
	}
	return d, nil
}
