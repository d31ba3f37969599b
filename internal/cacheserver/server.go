// Package cacheserver exposes any cache.Client over socket.io so that several
// machines can share derived data through the remote cache tier.
package cacheserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/zishang520/socket.io/v2/socket"
	"golang.org/x/sync/errgroup"
)

// Server answers cache:get and cache:put events against a backing store.
type Server struct {
	store  cache.Client
	logger *slog.Logger

	gets atomic.Int64
	puts atomic.Int64
}

// New creates a server over store.
func New(store cache.Client) *Server {
	return &Server{store: store}
}

// Handler returns the HTTP handler serving socket.io under /socket.io/ and a
// plain health endpoint under /health.
func (s *Server) Handler(ctx context.Context) http.Handler {
	s.logger = ctxlog.FromContext(ctx)

	io := socket.NewServer(nil, nil)
	io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.logger.Debug("Cache client connected.", "sid", client.Id())

		client.On(cache.EventGet, func(args ...any) {
			client.Emit(cache.EventReply, s.handleGet(ctx, args).Map())
		})
		client.On(cache.EventPut, func(args ...any) {
			client.Emit(cache.EventReply, s.handlePut(ctx, args).Map())
		})
		client.On("disconnect", func(...any) {
			s.logger.Debug("Cache client disconnected.", "sid", client.Id())
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", io.ServeHandler(nil))
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// ListenAndServe runs the server on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	logger := ctxlog.FromContext(ctx)
	srv := &http.Server{Addr: addr, Handler: s.Handler(ctx)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Cache server starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("cacheserver: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Info("Shutting down cache server...")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK gets=%d puts=%d\n", s.gets.Load(), s.puts.Load())
}

func (s *Server) handleGet(ctx context.Context, args []any) cache.Reply {
	s.gets.Add(1)
	req, err := cache.ParseRequest(args)
	if err != nil {
		return cache.Reply{ID: req.ID, Error: err.Error()}
	}
	a, err := s.store.TryGet(ctx, req.Key)
	switch {
	case cache.IsMiss(err):
		return cache.Reply{ID: req.ID}
	case err != nil:
		s.logger.Warn("Cache lookup failed.", "key", req.Key.Short(), "error", err)
		return cache.Reply{ID: req.ID, Error: err.Error()}
	}
	blob, err := cache.Encode(a)
	if err != nil {
		return cache.Reply{ID: req.ID, Error: err.Error()}
	}
	return cache.Reply{ID: req.ID, Found: true, Blob: blob}
}

func (s *Server) handlePut(ctx context.Context, args []any) cache.Reply {
	s.puts.Add(1)
	req, err := cache.ParseRequest(args)
	if err != nil {
		return cache.Reply{ID: req.ID, Error: err.Error()}
	}
	a, err := cache.Decode(req.Key, req.Blob)
	if err != nil {
		return cache.Reply{ID: req.ID, Error: err.Error()}
	}
	if err := s.store.Put(ctx, req.Key, a); err != nil {
		s.logger.Warn("Cache store failed.", "key", req.Key.Short(), "error", err)
		return cache.Reply{ID: req.ID, Error: err.Error()}
	}
	return cache.Reply{ID: req.ID}
}
