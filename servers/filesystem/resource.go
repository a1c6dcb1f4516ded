package filesystem

import (
	"context"
	"encoding/base64"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/contextwire/go-mcp"
)

const fileTemplate = "file://{path}"

// fileURI returns the file:// uri a path is published under.
func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

func (s *Server) readResource(_ context.Context, _ *mcp.Request, uri string, params map[string]string) (any, error) {
	p, ok := params["path"]
	if !ok {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, resourceNotFound(uri)
		}
		p = u.Path
	}

	path, err := s.resolve(p)
	if err != nil {
		return nil, resourceNotFound(uri)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, resourceNotFound(uri)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mimeType := mimeTypeOf(path, bs)
	if utf8.Valid(bs) && !strings.ContainsRune(string(bs), 0) {
		return mcp.ResourceContents{MimeType: mimeType, Text: string(bs)}, nil
	}
	return mcp.ResourceContents{MimeType: mimeType, Blob: base64.StdEncoding.EncodeToString(bs)}, nil
}

func resourceNotFound(uri string) mcp.JSONRPCError {
	return mcp.JSONRPCError{Code: mcp.CodeNotFound, Message: "Resource not found", Data: uri}
}

func mimeTypeOf(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// publishTree lists the regular files under dir as literal resources, up to the configured cap.
func (s *Server) publishTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			s.publish(path)
		}
		return nil
	})
}

func (s *Server) publish(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	uri := fileURI(path)

	s.publishedMu.Lock()
	defer s.publishedMu.Unlock()

	if _, ok := s.published[uri]; ok || len(s.published) >= s.maxResources {
		return
	}
	name := path
	for _, root := range s.roots {
		if rel, err := filepath.Rel(root, path); err == nil && isSubpath(path, root) {
			name = filepath.ToSlash(rel)
			break
		}
	}
	if err := s.srv.AddResource(uri, name, "", s.readResource,
		mcp.WithResourceMimeType(mime.TypeByExtension(filepath.Ext(path))),
		mcp.WithResourceSize(info.Size())); err != nil {
		s.logger.Warn("failed to publish file", slog.String("uri", uri), slog.String("err", err.Error()))
		return
	}
	s.published[uri] = struct{}{}
}

// unpublish removes path and, when it was a directory, every file published beneath it.
func (s *Server) unpublish(path string) {
	uri := fileURI(path)

	s.publishedMu.Lock()
	defer s.publishedMu.Unlock()

	for published := range s.published {
		if published == uri || strings.HasPrefix(published, uri+"/") {
			delete(s.published, published)
			s.srv.RemoveResource(published)
		}
	}
}
