package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/http/response"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

type PredictionHandler struct {
	predictions services.PredictionService
}

func NewPredictionHandler(predictions services.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictions: predictions}
}

type batchResponse struct {
	*domain.PredictionBatch
	Counts    prediction.Counts `json:"counts"`
	Cancelled *int64            `json:"cancelled,omitempty"`
}

func newBatchResponse(b *domain.PredictionBatch) batchResponse {
	return batchResponse{PredictionBatch: b, Counts: prediction.CountStatuses(b.Predictions)}
}

func (h *PredictionHandler) List(c *gin.Context) {
	skip, limit, err := page(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	filter := domain.PredictionFilter{
		ModelType: c.Query("model_type"),
		Status:    c.Query("status"),
		Skip:      skip,
		Limit:     limit,
	}
	for name, dst := range map[string]**uuid.UUID{
		"compound_id":   &filter.CompoundID,
		"experiment_id": &filter.ExperimentID,
		"batch_id":      &filter.BatchID,
	} {
		if *dst, err = optionalUUIDQuery(c, name); err != nil {
			response.RespondAPIError(c, err)
			return
		}
	}
	out, err := h.predictions.List(c.Request.Context(), filter)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *PredictionHandler) Create(c *gin.Context) {
	var req struct {
		CompoundID   uuid.UUID  `json:"compound_id"`
		ModelType    string     `json:"model_type"`
		ModelName    string     `json:"model_name"`
		ExperimentID *uuid.UUID `json:"experiment_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	if req.CompoundID == uuid.Nil {
		response.RespondAPIError(c, apierr.Validation("compound_id is required"))
		return
	}
	out, err := h.predictions.SubmitSingle(c.Request.Context(), services.SubmitRequest{
		CompoundIDs:  []uuid.UUID{req.CompoundID},
		ModelType:    req.ModelType,
		ModelName:    req.ModelName,
		ExperimentID: req.ExperimentID,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, out)
}

func (h *PredictionHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.predictions.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// CreateBatch returns 202: members are pending and complete asynchronously.
func (h *PredictionHandler) CreateBatch(c *gin.Context) {
	var req struct {
		CompoundIDs  []uuid.UUID `json:"compound_ids"`
		ModelType    string      `json:"model_type"`
		ModelName    string      `json:"model_name"`
		ExperimentID *uuid.UUID  `json:"experiment_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	b, err := h.predictions.SubmitBatch(c.Request.Context(), services.SubmitRequest{
		CompoundIDs:  req.CompoundIDs,
		ModelType:    req.ModelType,
		ModelName:    req.ModelName,
		ExperimentID: req.ExperimentID,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, newBatchResponse(b))
}

func (h *PredictionHandler) GetBatch(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	b, err := h.predictions.GetBatch(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, newBatchResponse(b))
}

func (h *PredictionHandler) CancelBatch(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	b, n, err := h.predictions.CancelBatch(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out := newBatchResponse(b)
	out.Cancelled = &n
	response.RespondOK(c, out)
}

func (h *PredictionHandler) ListByCompound(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	skip, limit, err := page(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.predictions.ListByCompound(c.Request.Context(), id, skip, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *PredictionHandler) Models(c *gin.Context) {
	response.RespondOK(c, gin.H{"models": h.predictions.Models()})
}
