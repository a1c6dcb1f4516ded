// Package filesystem serves a set of local directories over MCP as tools and file://
// resources.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/contextwire/go-mcp"
	"github.com/fsnotify/fsnotify"
)

// Server exposes a set of directories to MCP clients. Every path a client names, through a tool
// argument or a file:// uri, is resolved and confined to those directories.
type Server struct {
	roots        []string
	logger       *slog.Logger
	maxResources int

	srv     *mcp.Server
	watcher *fsnotify.Watcher

	publishedMu sync.Mutex
	published   map[string]struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a filesystem Server.
type Option func(*Server)

const defaultMaxResources = 200

var errNoRoots = errors.New("at least one allowed directory is required")

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxResources caps how many files are listed individually by resources/list. Files past
// the cap stay readable through the file://{path} template.
func WithMaxResources(n int) Option {
	return func(s *Server) {
		s.maxResources = n
	}
}

// NewServer returns a Server confined to roots. Each root must be an existing directory; roots
// are stored as absolute paths with symlinks resolved.
func NewServer(roots []string, options ...Option) (*Server, error) {
	if len(roots) == 0 {
		return nil, errNoRoots
	}

	s := &Server{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxResources: defaultMaxResources,
		published:    make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", root)
		}
		s.roots = append(s.roots, filepath.Clean(resolved))
	}

	return s, nil
}

// Roots returns the allowed directories.
func (s *Server) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Register adds the filesystem tools and resources to srv and starts watching the allowed
// directories. Files created or removed while watching are added to or removed from
// resources/list, and writes are reported to subscribers of the file's uri.
func (s *Server) Register(srv *mcp.Server) error {
	s.srv = srv
	s.registerTools(srv)

	if err := srv.AddResource(fileTemplate, "file", "A file under one of the allowed directories",
		s.readResource); err != nil {
		return fmt.Errorf("failed to register file template: %w", err)
	}
	for _, root := range s.roots {
		s.publishTree(root)
	}

	return s.watch()
}

// Close stops the watcher. Registered tools and resources remain on the mcp.Server.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return err
}
