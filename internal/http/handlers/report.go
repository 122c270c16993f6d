package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/http/response"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

type ReportHandler struct {
	reports services.ReportService
}

func NewReportHandler(reports services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// CompoundsCSV exports every live compound, or only those in ?ids=a,b,c.
func (h *ReportHandler) CompoundsCSV(c *gin.Context) {
	var ids []uuid.UUID
	for _, raw := range c.QueryArray("ids") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				response.RespondAPIError(c, apierr.Validation("invalid compound id %q", part))
				return
			}
			ids = append(ids, id)
		}
	}
	rep, err := h.reports.CompoundsCSV(c.Request.Context(), ids)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAttachment(c, rep.Filename, rep.ContentType, rep.Data)
}

func (h *ReportHandler) PredictionsCSV(c *gin.Context) {
	experimentID, err := optionalUUIDQuery(c, "experiment_id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	compoundID, err := optionalUUIDQuery(c, "compound_id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	rep, err := h.reports.PredictionsCSV(c.Request.Context(), experimentID, compoundID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAttachment(c, rep.Filename, rep.ContentType, rep.Data)
}

func (h *ReportHandler) ExperimentPDF(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	rep, err := h.reports.ExperimentPDF(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAttachment(c, rep.Filename, rep.ContentType, rep.Data)
}
