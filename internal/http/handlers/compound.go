package handlers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/http/response"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

type CompoundHandler struct {
	compounds services.CompoundService
	importer  services.ImportService
}

func NewCompoundHandler(compounds services.CompoundService, importer services.ImportService) *CompoundHandler {
	return &CompoundHandler{compounds: compounds, importer: importer}
}

type compoundRequest struct {
	Name             string          `json:"name"`
	Smiles           string          `json:"smiles"`
	Inchi            string          `json:"inchi"`
	InchiKey         string          `json:"inchi_key"`
	MolecularFormula string          `json:"molecular_formula"`
	MolecularWeight  *float64        `json:"molecular_weight"`
	Properties       json.RawMessage `json:"properties"`
}

func (h *CompoundHandler) List(c *gin.Context) {
	skip, limit, err := page(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	minW, err := optionalFloatQuery(c, "min_mw")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	maxW, err := optionalFloatQuery(c, "max_mw")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.compounds.List(c.Request.Context(), domain.CompoundFilter{
		Search:         c.Query("search"),
		MinWeight:      minW,
		MaxWeight:      maxW,
		ExternalSource: c.Query("external_source"),
		Skip:           skip,
		Limit:          limit,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *CompoundHandler) Create(c *gin.Context) {
	var req compoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	props, err := jsonObject("properties", req.Properties)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.compounds.Create(c.Request.Context(), domain.CompoundFields{
		Name:             req.Name,
		Smiles:           req.Smiles,
		Inchi:            req.Inchi,
		InchiKey:         req.InchiKey,
		MolecularFormula: req.MolecularFormula,
		MolecularWeight:  req.MolecularWeight,
		Properties:       props,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, out)
}

func (h *CompoundHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.compounds.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// Update applies a partial edit. The expected version comes from the body's
// "version" or an If-Match header; an explicit null clears weight or properties.
func (h *CompoundHandler) Update(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("unreadable body"))
		return
	}
	version, patch, err := parseCompoundPatch(raw)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if version == 0 {
		if version, err = ifMatchVersion(c.GetHeader("If-Match")); err != nil {
			response.RespondAPIError(c, err)
			return
		}
	}
	out, err := h.compounds.Update(c.Request.Context(), id, version, patch)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Header("ETag", strconv.Quote(strconv.Itoa(out.CurrentVersion)))
	response.RespondOK(c, out)
}

func (h *CompoundHandler) Delete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.compounds.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *CompoundHandler) Versions(c *gin.Context) {
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
	out, err := h.compounds.Versions(c.Request.Context(), id, skip, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *CompoundHandler) Rollback(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	target, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid version %q", c.Param("version")))
		return
	}
	out, err := h.compounds.Rollback(c.Request.Context(), id, target)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h *CompoundHandler) ImportFromRegistry(c *gin.Context) {
	res, err := h.importer.Import(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if res.Created {
		response.RespondCreated(c, res.Compound)
		return
	}
	response.RespondOK(c, res.Compound)
}

func parseCompoundPatch(raw []byte) (int, domainagg.CompoundPatch, error) {
	var patch domainagg.CompoundPatch
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return 0, patch, apierr.Validation("request body must be a JSON object")
	}
	version := 0
	if v, ok := body["version"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &version); err != nil {
			return 0, patch, apierr.Validation("version must be an integer")
		}
	}
	strField := func(key string) (*string, error) {
		v, ok := body[key]
		if !ok || isNull(v) {
			return nil, nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, apierr.Validation("%s must be a string", key)
		}
		return &s, nil
	}
	var err error
	if patch.Name, err = strField("name"); err != nil {
		return 0, patch, err
	}
	if patch.Smiles, err = strField("smiles"); err != nil {
		return 0, patch, err
	}
	if patch.Inchi, err = strField("inchi"); err != nil {
		return 0, patch, err
	}
	if patch.InchiKey, err = strField("inchi_key"); err != nil {
		return 0, patch, err
	}
	if patch.MolecularFormula, err = strField("molecular_formula"); err != nil {
		return 0, patch, err
	}
	if v, ok := body["molecular_weight"]; ok {
		if isNull(v) {
			patch.ClearWeight = true
		} else {
			var w float64
			if err := json.Unmarshal(v, &w); err != nil {
				return 0, patch, apierr.Validation("molecular_weight must be a number")
			}
			patch.MolecularWeight = &w
		}
	}
	if v, ok := body["properties"]; ok {
		if isNull(v) {
			patch.ClearProperties = true
		} else {
			props, err := jsonObject("properties", v)
			if err != nil {
				return 0, patch, err
			}
			patch.Properties = props
		}
	}
	return version, patch, nil
}

func ifMatchVersion(header string) (int, error) {
	v := strings.TrimSpace(header)
	if v == "" {
		return 0, nil
	}
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apierr.Validation("If-Match must carry a version number")
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// jsonObject accepts an absent/null value or a JSON object.
func jsonObject(name string, raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apierr.Validation("%s must be a JSON object", name)
	}
	return datatypes.JSON(bytes.TrimSpace(raw)), nil
}
