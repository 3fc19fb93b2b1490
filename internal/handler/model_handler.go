package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Oerlinker/BackendAISi2/internal/service"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/response"
)

type modelAdminService interface {
	RequestTraining(ctx context.Context, req service.TrainModelRequest) (*service.TrainingJobResponse, error)
	Reload() int
	Metadata(ctx context.Context) (*service.ModelMetadata, error)
}

// ModelHandler exposes model training and cache administration.
type ModelHandler struct {
	service modelAdminService
}

// NewModelHandler constructs the handler.
func NewModelHandler(svc modelAdminService) *ModelHandler {
	return &ModelHandler{service: svc}
}

// Train godoc
// @Summary Queue a training pass
// @Tags Models
// @Accept json
// @Produce json
// @Param payload body service.TrainModelRequest false "Optional subject scope"
// @Success 202 {object} response.Envelope
// @Router /models/train [post]
func (h *ModelHandler) Train(c *gin.Context) {
	var req service.TrainModelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.service.RequestTraining(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Reload godoc
// @Summary Drop cached model artifacts
// @Tags Models
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /models/reload [post]
func (h *ModelHandler) Reload(c *gin.Context) {
	dropped := h.service.Reload()
	response.JSON(c, http.StatusOK, gin.H{"dropped": dropped}, nil)
}

// Metadata godoc
// @Summary Latest training run and stored artifacts
// @Tags Models
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /models/metadata [get]
func (h *ModelHandler) Metadata(c *gin.Context) {
	meta, err := h.service.Metadata(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, meta, nil)
}
