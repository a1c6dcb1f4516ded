package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/contextwire/go-mcp"
	"github.com/contextwire/go-mcp/servers/memory"
	"github.com/google/go-cmp/cmp"
)

type updates chan string

func (u updates) OnResourceSubscribedChanged(uri string) {
	u <- uri
}

func setup(t *testing.T, options ...mcp.ClientOption) *mcp.Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srvReader, cliWriter := io.Pipe()
	cliReader, srvWriter := io.Pipe()

	srv := mcp.NewServer(mcp.Info{Name: "memory", Version: "1.0"},
		mcp.NewStdIO(srvReader, srvWriter, mcp.WithStdIOLogger(logger)),
		mcp.WithServerLogger(logger))
	ms, err := memory.NewServer(filepath.Join(t.TempDir(), "memory.jsonl"))
	if err != nil {
		t.Fatalf("failed to open memory server: %v", err)
	}
	if err := ms.Register(srv); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	go func() {
		_ = srv.Serve()
	}()

	options = append(options, mcp.WithClientLogger(logger))
	client := mcp.NewClient(mcp.Info{Name: "test-client", Version: "1.0"},
		mcp.NewStdIO(cliReader, cliWriter, mcp.WithStdIOLogger(logger)), options...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return client
}

func TestGraphOverMCP(t *testing.T) {
	events := make(updates, 8)
	client := setup(t, mcp.WithResourceSubscribedWatcher(events))

	if err := client.SubscribeResource(context.Background(), mcp.SubscribeResourceParams{URI: "memory://graph"}); err != nil {
		t.Fatalf("SubscribeResource failed: %v", err)
	}

	res, err := client.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "create_entities",
		Arguments: []byte(`{"entities":[{"name":"alice","entityType":"person","observations":["likes Go"]}]}`),
	})
	if err != nil {
		t.Fatalf("create_entities failed: %v", err)
	}
	var created []memory.Entity
	if err := json.Unmarshal([]byte(res.Content[0].Text), &created); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(created) != 1 || created[0].Name != "alice" {
		t.Errorf("created = %+v", created)
	}

	select {
	case uri := <-events:
		if uri != "memory://graph" {
			t.Errorf("updated uri = %q", uri)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update for memory://graph")
	}

	graph, err := client.ReadResource(context.Background(), mcp.ReadResourceParams{URI: "memory://graph"})
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if graph.Contents[0].MimeType != "application/json" {
		t.Errorf("mime type = %q", graph.Contents[0].MimeType)
	}
	var got memory.KnowledgeGraph
	if err := json.Unmarshal([]byte(graph.Contents[0].Text), &got); err != nil {
		t.Fatalf("graph is not JSON: %v", err)
	}
	want := memory.KnowledgeGraph{
		Entities:  []memory.Entity{{Name: "alice", EntityType: "person", Observations: []string{"likes Go"}}},
		Relations: []memory.Relation{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}

	_, err = client.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "add_observations",
		Arguments: []byte(`{"observations":[{"entityName":"nobody","contents":["x"]}]}`),
	})
	var jsonErr mcp.JSONRPCError
	if !errors.As(err, &jsonErr) || jsonErr.Code != mcp.CodeNotFound {
		t.Errorf("add_observations on a missing entity error = %v, want not found", err)
	}
}
