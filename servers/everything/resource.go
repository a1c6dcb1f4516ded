package everything

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/contextwire/go-mcp"
)

const (
	resourceCount = 100

	infoURI          = "test://static/info"
	resourceTemplate = "test://static/resource/{id}"
)

func resourceURI(id int) string {
	return fmt.Sprintf("test://static/resource/%d", id)
}

func (s *Server) registerResources(srv *mcp.Server) error {
	if err := srv.AddResource(infoURI, "Server info", "Describes the resources of this server",
		s.readInfo, mcp.WithResourceMimeType("text/plain")); err != nil {
		return fmt.Errorf("failed to add info resource: %w", err)
	}
	if err := srv.AddResource(resourceTemplate, "Static Resource", "A static resource with a numeric ID",
		s.readStaticResource); err != nil {
		return fmt.Errorf("failed to add resource template: %w", err)
	}
	return nil
}

func (s *Server) readInfo(context.Context, *mcp.Request, string, map[string]string) (any, error) {
	return fmt.Sprintf("This server exposes %d resources under %s. "+
		"Odd ids are plain text, even ids are binary blobs.", resourceCount, resourceTemplate), nil
}

func (s *Server) readStaticResource(_ context.Context, _ *mcp.Request, uri string, params map[string]string) (any, error) {
	id, err := strconv.Atoi(params["id"])
	if err != nil || id < 1 || id > resourceCount {
		return nil, mcp.JSONRPCError{
			Code:    mcp.CodeNotFound,
			Message: "Resource not found",
			Data:    uri,
		}
	}

	if id%2 == 1 {
		return mcp.ResourceContents{
			MimeType: "text/plain",
			Text:     fmt.Sprintf("Resource %d: This is a plain text resource", id),
		}, nil
	}
	return []byte(fmt.Sprintf("Resource %d: This is a base64 blob", id)), nil
}

func (s *Server) simulateResourceUpdates(srv *mcp.Server) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		// Only subscribed sessions are told about each update.
		ctx, cancel := context.WithTimeout(context.Background(), s.updateInterval)
		srv.NotifyResourceUpdated(ctx, infoURI)
		for id := 1; id <= resourceCount; id++ {
			srv.NotifyResourceUpdated(ctx, resourceURI(id))
		}
		cancel()
		s.logger.Debug("simulated resource updates")
	}
}
