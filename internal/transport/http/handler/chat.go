package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/service"
	"github.com/set-night/mindchat/internal/transport/http/middleware"
	"github.com/set-night/mindchat/internal/transport/http/response"
)

type AttachmentStore interface {
	Put(ctx context.Context, owner domain.UserID, name, contentType string, r io.Reader, size int64) (string, error)
	Owns(locator string, owner domain.UserID) bool
}

type ChatHandler struct {
	chat  ChatService
	files AttachmentStore
}

type AttachmentRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Locator string `json:"locator" binding:"required"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
}

type SubmitRequest struct {
	Text       string             `json:"text"`
	Attachment *AttachmentRequest `json:"attachment"`
}

func NewChatHandler(chat ChatService, files AttachmentStore) *ChatHandler {
	return &ChatHandler{chat: chat, files: files}
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	session, welcome, err := h.chat.NewChat(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create chat failed")
		return
	}
	response.OK(c, gin.H{"session": session, "messages": []domain.Message{welcome}})
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.chat.Sessions(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list chats failed")
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) History(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}

	messages, err := h.chat.Messages(c.Request.Context(), session.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	response.OK(c, messages)
}

func (h *ChatHandler) Submit(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var (
		text       string
		attachment *domain.Attachment
		err        error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text, attachment, err = h.parseMultipart(c, session.OwnerID)
	} else {
		text, attachment, err = h.parseJSONSubmit(c, session.OwnerID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAttachment) {
			response.Error(c, http.StatusBadRequest, response.CodeInvalidAttachment, err.Error())
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	outcome, err := h.chat.Submit(c.Request.Context(), service.SubmitRequest{
		SessionID:  session.ID,
		Text:       text,
		Attachment: attachment,
	})
	if err != nil {
		var insufficient *domain.InsufficientFundsError
		switch {
		case errors.Is(err, domain.ErrEmptySubmission):
			response.Error(c, http.StatusBadRequest, response.CodeEmptySubmission, err.Error())
		case errors.Is(err, domain.ErrInvalidAttachment):
			response.Error(c, http.StatusBadRequest, response.CodeInvalidAttachment, err.Error())
		case errors.As(err, &insufficient):
			response.ErrorWithData(c, http.StatusPaymentRequired, response.CodeInsufficientFunds, "insufficient funds", gin.H{
				"required":  insufficient.Required,
				"available": insufficient.Available,
				"outcome":   outcome,
			})
		case errors.Is(err, domain.ErrUnknownSession):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "chat not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "send message failed")
		}
		return
	}
	response.OK(c, outcome)
}

func (h *ChatHandler) Balance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	balance, err := h.chat.Balance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get balance failed")
		return
	}
	response.OK(c, gin.H{"balance": balance})
}

// ownedSession resolves :id and hides sessions of other users behind 404.
func (h *ChatHandler) ownedSession(c *gin.Context) (domain.Session, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return domain.Session{}, false
	}

	session, err := h.chat.Session(c.Request.Context(), domain.SessionID(c.Param("id")))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "chat not found")
			return domain.Session{}, false
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get chat failed")
		return domain.Session{}, false
	}
	if session.OwnerID != userID {
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "chat not found")
		return domain.Session{}, false
	}
	return session, true
}

// parseJSONSubmit accepts only locators previously issued to owner by the
// attachment store.
func (h *ChatHandler) parseJSONSubmit(c *gin.Context, owner domain.UserID) (string, *domain.Attachment, error) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, err
	}
	if req.Attachment == nil {
		return req.Text, nil, nil
	}
	kind, err := domain.ParseAttachmentKind(req.Attachment.Kind)
	if err != nil {
		return "", nil, err
	}
	if !h.files.Owns(req.Attachment.Locator, owner) {
		return "", nil, fmt.Errorf("%w: unknown attachment locator", domain.ErrInvalidAttachment)
	}
	a := &domain.Attachment{Kind: kind, Locator: req.Attachment.Locator, Name: req.Attachment.Name, Size: req.Attachment.Size}
	return req.Text, a, a.Validate()
}

func (h *ChatHandler) parseMultipart(c *gin.Context, owner domain.UserID) (string, *domain.Attachment, error) {
	text := c.PostForm("text")
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return text, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if fh.Size > config.MaxAttachmentBytes {
		return "", nil, fmt.Errorf("%w: file larger than %d bytes", domain.ErrInvalidAttachment, config.MaxAttachmentBytes)
	}

	contentType := fh.Header.Get("Content-Type")
	var kind domain.AttachmentKind
	if k := c.PostForm("kind"); k != "" {
		if kind, err = domain.ParseAttachmentKind(k); err != nil {
			return "", nil, err
		}
	} else if strings.HasPrefix(contentType, "image/") {
		kind = domain.AttachmentImage
	} else {
		kind = domain.AttachmentDocument
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	locator, err := h.files.Put(c.Request.Context(), owner, fh.Filename, contentType, f, fh.Size)
	if err != nil {
		return "", nil, fmt.Errorf("store upload: %w", err)
	}
	a := &domain.Attachment{Kind: kind, Locator: locator, Name: fh.Filename, Size: fh.Size}
	return text, a, nil
}
