// Command server runs the everything, filesystem and memory MCP servers behind one endpoint,
// over stdio or SSE. It is configured from MCP_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contextwire/go-mcp"
	"github.com/contextwire/go-mcp/servers/everything"
	"github.com/contextwire/go-mcp/servers/filesystem"
	"github.com/contextwire/go-mcp/servers/memory"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Stdout carries the stdio transport, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	var (
		transport  mcp.ServerTransport
		httpServer *http.Server
	)
	switch cfg.Transport {
	case transportStdIO:
		transport = mcp.NewStdIO(os.Stdin, os.Stdout, mcp.WithStdIOLogger(logger))
	case transportSSE:
		options := []mcp.SSEServerOption{
			mcp.WithSSEServerLogger(logger),
			mcp.WithSSEKeepAlive(cfg.SSEKeepAlive),
		}
		if cfg.RateLimit > 0 {
			options = append(options, mcp.WithSSEMessageRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst))
		}
		sseServer := mcp.NewSSEServer(cfg.BaseURL+"/message", options...)

		mux := http.NewServeMux()
		mux.Handle("/sse", sseServer.HandleSSE())
		mux.Handle("/message", sseServer.HandleMessage())
		httpServer = &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		}
		transport = sseServer
	}

	srv := mcp.NewServer(mcp.Info{Name: "contextwire-example", Version: "1.0.0"}, transport,
		mcp.WithServerLogger(logger),
		mcp.WithInstructions("Demonstration server combining the everything, filesystem and memory servers."),
		mcp.WithServerOnClientConnected(func(ss *mcp.ServerSession) {
			logger.Info("client connected", slog.String("session", ss.ID()))
		}),
		mcp.WithServerOnClientDisconnected(func(ss *mcp.ServerSession) {
			logger.Info("client disconnected", slog.String("session", ss.ID()))
		}))

	closers, err := register(cfg, logger, srv)
	defer func() {
		for _, closer := range closers {
			closer()
		}
	}()
	if err != nil {
		return err
	}

	serveErr := make(chan error, 2)
	go func() {
		serveErr <- srv.Serve()
	}()
	if httpServer != nil {
		go func() {
			logger.Info("listening", slog.String("addr", cfg.Addr), slog.String("baseURL", cfg.BaseURL))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown http server", slog.String("err", err.Error()))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown mcp server", slog.String("err", err.Error()))
	}
	return err
}

// register adds every configured example server to srv and returns their cleanup functions,
// including those of servers registered before a failure.
func register(cfg config, logger *slog.Logger, srv *mcp.Server) ([]func(), error) {
	var closers []func()

	es := everything.NewServer(
		everything.WithLogger(logger.With(slog.String("server", "everything"))),
		everything.WithUpdateInterval(cfg.UpdateInterval))
	closers = append(closers, es.Close)
	if err := es.Register(srv); err != nil {
		return closers, fmt.Errorf("failed to register everything server: %w", err)
	}

	if cfg.FSRoot != "" {
		fs, err := filesystem.NewServer([]string{cfg.FSRoot},
			filesystem.WithLogger(logger.With(slog.String("server", "filesystem"))))
		if err != nil {
			return closers, fmt.Errorf("failed to create filesystem server: %w", err)
		}
		closers = append(closers, func() { _ = fs.Close() })
		if err := fs.Register(srv); err != nil {
			return closers, fmt.Errorf("failed to register filesystem server: %w", err)
		}
	}

	if cfg.MemoryFile != "" {
		ms, err := memory.NewServer(cfg.MemoryFile)
		if err != nil {
			return closers, fmt.Errorf("failed to open memory server: %w", err)
		}
		if err := ms.Register(srv); err != nil {
			return closers, fmt.Errorf("failed to register memory server: %w", err)
		}
	}

	return closers, nil
}
