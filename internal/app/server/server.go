package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"livechat/internal/app/registry"
	"livechat/internal/app/server/handlers"
	"livechat/internal/core/services"
	"livechat/internal/platform/metrics"
	"livechat/pkg/middleware"
)

type Server struct {
	mux  *http.ServeMux
	addr string
	name string
	log  *slog.Logger
	hub  *registry.Registry

	authHandler        *handlers.AuthHandler
	wsHandler          *handlers.WSHandler
	roomsHandler       *handlers.RoomsHandler
	attachmentsHandler *handlers.AttachmentsHandler
	tokenSvc           *services.TokenService
}

func NewServer(
	log *slog.Logger,
	name, addr string,
	hub *registry.Registry,
	tokenSvc *services.TokenService,
	authHandler *handlers.AuthHandler,
	wsHandler *handlers.WSHandler,
	roomsHandler *handlers.RoomsHandler,
	attachmentsHandler *handlers.AttachmentsHandler,
) *Server {
	s := &Server{
		mux:                http.NewServeMux(),
		addr:               addr,
		name:               name,
		log:                log,
		hub:                hub,
		authHandler:        authHandler,
		wsHandler:          wsHandler,
		roomsHandler:       roomsHandler,
		attachmentsHandler: attachmentsHandler,
		tokenSvc:           tokenSvc,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)

	// Public
	s.mux.HandleFunc("POST /auth/register", s.authHandler.Register)
	s.mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Protected
	s.mux.Handle("GET /ws", auth(http.HandlerFunc(s.wsHandler.Handler)))
	s.mux.Handle("POST /rooms", auth(http.HandlerFunc(s.roomsHandler.Create)))
	s.mux.Handle("POST /rooms/{id}/members", auth(http.HandlerFunc(s.roomsHandler.AddMember)))
	s.mux.Handle("GET /rooms/{id}/messages", auth(http.HandlerFunc(s.roomsHandler.History)))
	s.mux.Handle("POST /attachments", auth(http.HandlerFunc(s.attachmentsHandler.Upload)))
}

// Start serves until ctx is cancelled, then drains every websocket
// connection before shutting the listener down.
func (s *Server) Start(ctx context.Context) error {
	handler := middleware.RequestLogger(s.log)(
		middleware.TracerMiddleware(s.name)(s.mux),
	)
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket sessions are long-lived.
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server - listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server - draining connections")
	s.hub.DrainAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
