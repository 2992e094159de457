package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	platformotel "github.com/Tyrowin/hangout/internal/platform/otel"
	"github.com/Tyrowin/hangout/internal/storage"
	"github.com/Tyrowin/hangout/internal/storage/sqlite"
)

const serviceName = "hangout"

// Run opens storage, starts the hub, serves HTTP on cfg.Port and runs the
// retention purge until ctx is cancelled, then shuts everything down in
// reverse order.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.sanitized()

	shutdownTracing, err := platformotel.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}()

	srv, err := New(ctx, cfg, store)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Port, err)
	}
	return srv.Serve(ctx, listener)
}

// Serve runs the hub, the HTTP server on listener and the purge loop until
// ctx is cancelled or one of them fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.StartHub()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return errors.Join(s.shutdownHTTP(httpServer), s.hub.Shutdown(s.cfg.ShutdownTimeout))
	})
	if s.store != nil && s.cfg.MessageRetention > 0 {
		g.Go(func() error {
			purgeLoop(gctx, s.store, s.cfg.MessageRetention, s.cfg.PurgeInterval, time.Now)
			return nil
		})
	}
	return g.Wait()
}

// shutdownHTTP stops accepting requests and waits for in-flight ones. Hijacked
// WebSocket connections are not covered; the hub closes those.
func (s *Server) shutdownHTTP(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}
	log.Println("HTTP server shutdown completed")
	return nil
}

// purgeLoop deletes messages older than retention every interval. Failures
// are logged and retried on the next tick.
func purgeLoop(ctx context.Context, store storage.MessageStore, retention, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purgeOnce(ctx, store, retention, now)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeOnce(ctx context.Context, store storage.MessageStore, retention time.Duration, now func() time.Time) {
	removed, err := store.PurgeMessagesOlderThan(ctx, now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Message purge failed: %v", err)
		}
		return
	}
	if removed > 0 {
		log.Printf("Purged %d messages older than %s", removed, retention)
	}
}
