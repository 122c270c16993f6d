package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/compoundlab-backend/internal/http/response"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	user, err := ah.authService.Register(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, user)
}

// Login takes the OAuth2 password form: username (email) and password.
func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `form:"username"`
		Password string `form:"password"`
	}
	if err := c.ShouldBind(&req); err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid login form: %v", err))
		return
	}
	if req.Username == "" || req.Password == "" {
		response.RespondAPIError(c, apierr.Validation("username and password are required"))
		return
	}
	tok, err := ah.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, tok)
}

func (ah *AuthHandler) Me(c *gin.Context) {
	user, err := ah.authService.Me(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, user)
}
