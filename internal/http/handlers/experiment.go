package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/http/response"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

type ExperimentHandler struct {
	experiments services.ExperimentService
}

func NewExperimentHandler(experiments services.ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

func (h *ExperimentHandler) List(c *gin.Context) {
	skip, limit, err := page(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.experiments.List(c.Request.Context(), domain.ExperimentFilter{
		ModelType: c.Query("model_type"),
		Status:    c.Query("status"),
		Skip:      skip,
		Limit:     limit,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *ExperimentHandler) Create(c *gin.Context) {
	var req struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		ModelType   string          `json:"model_type"`
		ModelName   string          `json:"model_name"`
		Parameters  json.RawMessage `json:"parameters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	params, err := jsonObject("parameters", req.Parameters)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.experiments.Create(c.Request.Context(), services.CreateExperimentInput{
		Name:        req.Name,
		Description: req.Description,
		ModelType:   req.ModelType,
		ModelName:   req.ModelName,
		Parameters:  params,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, out)
}

func (h *ExperimentHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.experiments.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *ExperimentHandler) Update(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req struct {
		Name        *string         `json:"name"`
		Description *string         `json:"description"`
		ModelName   *string         `json:"model_name"`
		Status      *string         `json:"status"`
		Parameters  json.RawMessage `json:"parameters"`
		Metrics     json.RawMessage `json:"metrics"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	patch := domainagg.ExperimentPatch{
		Name:        req.Name,
		Description: req.Description,
		ModelName:   req.ModelName,
		Status:      req.Status,
	}
	if patch.Parameters, err = jsonObject("parameters", req.Parameters); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if patch.Metrics, err = jsonObject("metrics", req.Metrics); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.experiments.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// LogToTracking is idempotent: repeat calls return the stored run id.
func (h *ExperimentHandler) LogToTracking(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	res, err := h.experiments.LogToTracking(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"experiment":     res.Experiment,
		"run_id":         res.RunID,
		"already_logged": res.AlreadyLogged,
	})
}
