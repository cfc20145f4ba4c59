package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/transport/http/middleware"
	"github.com/set-night/mindchat/internal/transport/http/response"
)

type AuthHandler struct {
	auth AuthService
	chat ChatService
}

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID          domain.UserID `json:"id"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"display_name"`
	Balance     int64         `json:"balance"`
	CreatedAt   time.Time     `json:"created_at"`
}

func NewAuthHandler(auth AuthService, chat ChatService) *AuthHandler {
	return &AuthHandler{auth: auth, chat: chat}
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	response.OK(c, gin.H{"token": result.Token, "user_id": result.User.ID})
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	response.OK(c, gin.H{"token": result.Token, "user_id": result.User.ID})
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), userID); err != nil {
		writeAuthError(c, err)
		return
	}
	response.OK(c, gin.H{"signed_out": true})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	user, err := h.auth.User(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get user failed")
		return
	}
	balance, err := h.chat.Balance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get balance failed")
		return
	}

	response.OK(c, userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Balance:     balance,
		CreatedAt:   user.CreatedAt,
	})
}

func writeAuthError(c *gin.Context, err error) {
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "authentication failed")
		return
	}

	msg := authErr.DisplayMessage()
	switch authErr.Reason {
	case domain.AuthEmailInUse:
		response.Error(c, http.StatusConflict, response.CodeEmailExists, msg)
	case domain.AuthWeakPassword, domain.AuthInvalidEmail:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, msg)
	case domain.AuthUserNotFound, domain.AuthWrongPassword:
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, msg)
	case domain.AuthNetwork:
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, msg)
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, msg)
	}
}
