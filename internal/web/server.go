package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/actionsum/nudge/internal/config"
)

type Server struct {
	config  *config.Config
	handler *Handler
	server  *http.Server
}

func NewServer(cfg *config.Config, deps Deps, customPort int) *Server {
	handler := NewHandler(deps)
	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	port := cfg.Web.Port
	if customPort > 0 {
		port = customPort
	}

	addr := net.JoinHostPort(cfg.Web.Host, fmt.Sprint(port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
	}
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("Starting web server on http://%s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return s.server.Addr
}
