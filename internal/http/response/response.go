package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps err through apierr so services can return typed errors.
// Internal errors never leak their message.
func RespondAPIError(c *gin.Context, err error) {
	e := apierr.As(err)
	if e == nil {
		e = apierr.New(http.StatusInternalServerError, apierr.CodeInternal, nil)
	}
	_ = c.Error(err)
	if e.Status >= http.StatusInternalServerError && e.Code == apierr.CodeInternal {
		c.JSON(e.Status, ErrorEnvelope{Error: APIError{Message: "internal server error", Code: e.Code}})
		return
	}
	RespondError(c, e.Status, e.Code, e)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondAttachment sends a binary download.
func RespondAttachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
