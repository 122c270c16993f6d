package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
)

const maxPageLimit = 1000

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierr.Validation("invalid %s %q", name, raw)
	}
	return id, nil
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apierr.Validation("invalid %s %q", name, raw)
	}
	return &id, nil
}

func optionalFloatQuery(c *gin.Context, name string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apierr.Validation("invalid %s %q", name, raw)
	}
	return &v, nil
}

// page reads skip/limit. limit must be within 1..1000 when given.
func page(c *gin.Context) (int, int, error) {
	skip, limit := 0, 0
	if raw := strings.TrimSpace(c.Query("skip")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, apierr.Validation("skip must be a non-negative integer")
		}
		skip = v
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageLimit {
			return 0, 0, apierr.Validation("limit must be between 1 and %d", maxPageLimit)
		}
		limit = v
	}
	return skip, limit, nil
}
