package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/transport/http/middleware"
	"github.com/set-night/mindchat/internal/transport/http/response"
)

type TransactionHandler struct {
	history TransactionHistory
}

// NewTransactionHandler accepts a nil history; the endpoint then lists nothing.
func NewTransactionHandler(history TransactionHistory) *TransactionHandler {
	return &TransactionHandler{history: history}
}

func (h *TransactionHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if h.history == nil {
		response.OK(c, []domain.Transaction{})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
		return
	}

	txs, err := h.history.Transactions(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list transactions failed")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	response.OK(c, txs)
}
