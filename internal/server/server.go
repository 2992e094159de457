package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tyrowin/hangout/internal/auth"
	"github.com/Tyrowin/hangout/internal/gifsearch"
	"github.com/Tyrowin/hangout/internal/rooms"
)

const tracerName = "github.com/Tyrowin/hangout/internal/server"

// Server bundles the hub with the HTTP API around it.
type Server struct {
	cfg      Config
	hub      *Hub
	rooms    *rooms.Directory
	store    Store
	gifs     *gifsearch.Client
	admin    auth.AdminConfig
	upgrader websocket.Upgrader
	tracer   trace.Tracer
}

// Option customises a Server.
type Option func(*Server)

// WithGifClient replaces the GIF provider client.
func WithGifClient(client *gifsearch.Client) Option {
	return func(s *Server) {
		s.gifs = client
	}
}

// WithDirectoryOptions passes options to the room directory, e.g. a clock or
// a cheaper hash cost in tests.
func WithDirectoryOptions(opts ...rooms.Option) Option {
	return func(s *Server) {
		s.rooms = rooms.NewDirectory(s.store, opts...)
	}
}

// New loads the room directory from store, seeds the default room and wires
// the hub. A nil store keeps rooms in memory and disables the message and
// profile API.
func New(ctx context.Context, cfg Config, store Store, opts ...Option) (*Server, error) {
	cfg = cfg.sanitized()
	s := &Server{
		cfg:    cfg,
		store:  store,
		rooms:  rooms.NewDirectory(store),
		gifs:   gifsearch.New(gifsearch.Config{APIKey: cfg.GifAPIKey, BaseURL: cfg.GifBaseURL}),
		admin:  auth.AdminConfig{Secret: []byte(cfg.AdminSecret), Issuer: cfg.AdminIssuer},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.rooms.Load(ctx); err != nil {
		return nil, err
	}
	if err := s.rooms.Ensure(ctx, cfg.DefaultRoom, ""); err != nil {
		return nil, fmt.Errorf("seed default room %q: %w", cfg.DefaultRoom, err)
	}

	s.hub = NewHub(cfg, s.rooms)
	policy := newOriginPolicy(cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}
	return s, nil
}

// StartHub starts the hub loop in its own goroutine. Call it before serving.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Rooms returns the room directory.
func (s *Server) Rooms() *rooms.Directory {
	return s.rooms
}

// Config returns the sanitized configuration in effect.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}
