package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/service"
	"github.com/set-night/mindchat/internal/transport/http/handler"
	"github.com/set-night/mindchat/internal/transport/http/middleware"
)

type Identity interface {
	handler.AuthService
	middleware.Authenticator
}

type Deps struct {
	Identity       Identity
	Chat           handler.ChatService
	Files          handler.AttachmentStore
	Transactions   handler.TransactionHistory
	Hub            *service.EventHub
	AllowedOrigins []string
}

// NewRouter builds the gin engine wrapped in the CORS layer.
func NewRouter(d Deps) http.Handler {
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())
	router.MaxMultipartMemory = config.MaxMultipartMemory

	authHandler := handler.NewAuthHandler(d.Identity, d.Chat)
	chatHandler := handler.NewChatHandler(d.Chat, d.Files)
	txHandler := handler.NewTransactionHandler(d.Transactions)
	eventsHandler := handler.NewEventsHandler(d.Hub, d.AllowedOrigins)
	authJWT := middleware.AuthJWT(d.Identity)

	router.GET("/healthz", handler.Health)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/signin", authHandler.SignIn)
	authGroup.POST("/signout", authJWT, authHandler.SignOut)
	authGroup.GET("/me", authJWT, authHandler.Me)

	api := v1.Group("")
	api.Use(authJWT)
	api.POST("/chats", chatHandler.CreateChat)
	api.GET("/chats", chatHandler.ListChats)
	api.GET("/chats/:id/messages", chatHandler.History)
	api.POST("/chats/:id/messages", chatHandler.Submit)
	api.GET("/balance", chatHandler.Balance)
	api.GET("/transactions", txHandler.List)
	api.GET("/ws", eventsHandler.ServeWS)

	return cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)
}

type Server struct {
	srv *http.Server
}

func NewServer(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
