// Package memory serves a persistent knowledge graph of entities, relations and observations
// over MCP.
package memory

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/contextwire/go-mcp"
)

const graphURI = "memory://graph"

// Server exposes a knowledge graph stored in a JSON lines file.
type Server struct {
	kb  *knowledgeBase
	srv *mcp.Server
}

// NewServer opens the knowledge graph at path. A missing file is an empty graph and is created
// on the first change.
func NewServer(path string) (*Server, error) {
	kb, err := openKnowledgeBase(path)
	if err != nil {
		return nil, err
	}
	return &Server{kb: kb}, nil
}

// Register adds the knowledge graph tools and the memory://graph resource to srv. Every
// successful change is reported to subscribers of memory://graph.
func (s *Server) Register(srv *mcp.Server) error {
	s.srv = srv

	srv.AddTool("create_entities", "Create multiple new entities in the knowledge graph.",
		mcp.TypedToolHandler(s.callCreateEntities), mcp.WithInputSchemaOf[CreateEntitiesArgs]())
	srv.AddTool("create_relations", "Create multiple new relations between entities in the knowledge graph. "+
		"Relations should be in active voice.",
		mcp.TypedToolHandler(s.callCreateRelations), mcp.WithInputSchemaOf[CreateRelationsArgs]())
	srv.AddTool("add_observations", "Add new observations to existing entities in the knowledge graph.",
		mcp.TypedToolHandler(s.callAddObservations), mcp.WithInputSchemaOf[AddObservationsArgs]())
	srv.AddTool("delete_entities", "Delete multiple entities and their associated relations from the knowledge graph.",
		mcp.TypedToolHandler(s.callDeleteEntities), mcp.WithInputSchemaOf[DeleteEntitiesArgs]())
	srv.AddTool("delete_observations", "Delete specific observations from entities in the knowledge graph.",
		mcp.TypedToolHandler(s.callDeleteObservations), mcp.WithInputSchemaOf[DeleteObservationsArgs]())
	srv.AddTool("delete_relations", "Delete multiple relations from the knowledge graph.",
		mcp.TypedToolHandler(s.callDeleteRelations), mcp.WithInputSchemaOf[DeleteRelationsArgs]())
	srv.AddTool("read_graph", "Read the entire knowledge graph.", s.callReadGraph)
	srv.AddTool("search_nodes", "Search for nodes in the knowledge graph based on a query.",
		mcp.TypedToolHandler(s.callSearchNodes), mcp.WithInputSchemaOf[SearchNodesArgs]())
	srv.AddTool("open_nodes", "Open specific nodes in the knowledge graph by their names.",
		mcp.TypedToolHandler(s.callOpenNodes), mcp.WithInputSchemaOf[OpenNodesArgs]())

	return srv.AddResource(graphURI, "knowledge graph", "The entire knowledge graph", s.readGraphResource,
		mcp.WithResourceMimeType("application/json"))
}

func (s *Server) changed(ctx context.Context) {
	s.srv.NotifyResourceUpdated(ctx, graphURI)
}

func (s *Server) callCreateEntities(ctx context.Context, req *mcp.Request, args CreateEntitiesArgs) (any, error) {
	created, err := s.kb.createEntities(args.Entities)
	if err != nil {
		return nil, err
	}
	req.Logger().Debug("entities created", slog.Int("count", len(created)))
	s.changed(ctx)
	return created, nil
}

func (s *Server) callCreateRelations(ctx context.Context, _ *mcp.Request, args CreateRelationsArgs) (any, error) {
	created, err := s.kb.createRelations(args.Relations)
	if err != nil {
		return nil, err
	}
	s.changed(ctx)
	return created, nil
}

func (s *Server) callAddObservations(ctx context.Context, _ *mcp.Request, args AddObservationsArgs) (any, error) {
	added, err := s.kb.addObservations(args.Observations)
	if err != nil {
		return nil, mcp.JSONRPCError{Code: mcp.CodeNotFound, Message: "Entity not found", Data: err.Error()}
	}
	s.changed(ctx)
	return added, nil
}

func (s *Server) callDeleteEntities(ctx context.Context, _ *mcp.Request, args DeleteEntitiesArgs) (any, error) {
	if err := s.kb.deleteEntities(args.EntityNames); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return "Entities deleted successfully", nil
}

func (s *Server) callDeleteObservations(ctx context.Context, _ *mcp.Request, args DeleteObservationsArgs) (any, error) {
	if err := s.kb.deleteObservations(args.Deletions); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return "Observations deleted successfully", nil
}

func (s *Server) callDeleteRelations(ctx context.Context, _ *mcp.Request, args DeleteRelationsArgs) (any, error) {
	if err := s.kb.deleteRelations(args.Relations); err != nil {
		return nil, err
	}
	s.changed(ctx)
	return "Relations deleted successfully", nil
}

func (s *Server) callReadGraph(context.Context, *mcp.Request, json.RawMessage) (any, error) {
	return s.kb.readGraph(), nil
}

func (s *Server) callSearchNodes(_ context.Context, _ *mcp.Request, args SearchNodesArgs) (any, error) {
	return s.kb.searchNodes(args.Query), nil
}

func (s *Server) callOpenNodes(_ context.Context, _ *mcp.Request, args OpenNodesArgs) (any, error) {
	return s.kb.openNodes(args.Names), nil
}

func (s *Server) readGraphResource(context.Context, *mcp.Request, string, map[string]string) (any, error) {
	return s.kb.readGraph(), nil
}
