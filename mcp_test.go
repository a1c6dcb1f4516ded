package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/contextwire/go-mcp"
	"github.com/google/go-cmp/cmp"
)

type testSuite struct {
	server *mcp.Server
	client *mcp.Client

	httpServer *httptest.Server
}

type testSuiteConfig struct {
	transportName string

	serverOptions []mcp.ServerOption
	clientOptions []mcp.ClientOption

	// register runs before the client connects.
	register func(srv *mcp.Server)
}

type echoArgs struct {
	Text  string `json:"text" jsonschema:"description=Text to echo"`
	Times int    `json:"times,omitempty"`
}

type mockWatcher struct {
	events chan string
}

type mockSamplingHandler struct {
	params chan mcp.SamplingParams
}

type mockRootsListHandler struct {
	roots []mcp.Root
}

type mockRootsListWatcher struct {
	roots chan []mcp.Root
}

var transportNames = []string{"SSE", "StdIO"}

func newMockWatcher() mockWatcher {
	return mockWatcher{events: make(chan string, 16)}
}

func (w mockWatcher) OnToolListChanged()     { w.events <- "tools" }
func (w mockWatcher) OnPromptListChanged()   { w.events <- "prompts" }
func (w mockWatcher) OnResourceListChanged() { w.events <- "resources" }

func (w mockWatcher) OnResourceSubscribedChanged(uri string) { w.events <- "updated " + uri }

func (w mockWatcher) OnProgress(params mcp.ProgressParams) {
	w.events <- fmt.Sprintf("progress %s %g/%g", params.ProgressToken, params.Progress, params.Total)
}

func (w mockWatcher) wait(t *testing.T, want string) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-w.events:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func (m mockSamplingHandler) CreateSampleMessage(_ context.Context, params mcp.SamplingParams) (mcp.SamplingResult, error) {
	m.params <- params
	return mcp.SamplingResult{
		Role:       mcp.RoleAssistant,
		Content:    mcp.TextContent("sampled answer"),
		Model:      "test-model",
		StopReason: "endTurn",
	}, nil
}

func (m mockRootsListHandler) RootsList(context.Context) (mcp.RootList, error) {
	return mcp.RootList{Roots: m.roots}, nil
}

func (m mockRootsListWatcher) OnRootsListChanged(session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx)
	if err != nil {
		return
	}
	m.roots <- roots.Roots
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(_ context.Context, _ *mcp.Request, args echoArgs) (any, error) {
	times := max(args.Times, 1)
	return strings.Repeat(args.Text, times), nil
}

func setupSSE() (*mcp.SSEServer, *mcp.SSEClient, *httptest.Server) {
	mux := http.NewServeMux()
	httpSrv := httptest.NewServer(mux)
	connectURL := fmt.Sprintf("%s/sse", httpSrv.URL)
	msgURL := fmt.Sprintf("%s/message", httpSrv.URL)

	srv := mcp.NewSSEServer(msgURL, mcp.WithSSEServerLogger(discardLogger()))

	mux.Handle("/sse", srv.HandleSSE())
	mux.Handle("/message", srv.HandleMessage())

	cli := mcp.NewSSEClient(connectURL, httpSrv.Client(), mcp.WithSSEClientLogger(discardLogger()))

	return srv, cli, httpSrv
}

func setupStdIO() (*mcp.StdIO, *mcp.StdIO) {
	srvReader, srvWriter := io.Pipe()
	cliReader, cliWriter := io.Pipe()

	// server's output is client's input
	srvIO := mcp.NewStdIO(srvReader, cliWriter, mcp.WithStdIOLogger(discardLogger()))
	// client's output is server's input
	cliIO := mcp.NewStdIO(cliReader, srvWriter, mcp.WithStdIOLogger(discardLogger()))

	return srvIO, cliIO
}

func setupSuite(t *testing.T, cfg testSuiteConfig) *testSuite {
	t.Helper()

	s := &testSuite{}

	var serverTransport mcp.ServerTransport
	var clientTransport mcp.ClientTransport
	if cfg.transportName == "SSE" {
		serverTransport, clientTransport, s.httpServer = setupSSE()
	} else {
		serverTransport, clientTransport = setupStdIO()
	}

	serverOptions := append([]mcp.ServerOption{mcp.WithServerLogger(discardLogger())}, cfg.serverOptions...)
	s.server = mcp.NewServer(mcp.Info{Name: "test-server", Version: "1.0"}, serverTransport, serverOptions...)
	if cfg.register != nil {
		cfg.register(s.server)
	}
	go func() {
		_ = s.server.Serve()
	}()

	clientOptions := append([]mcp.ClientOption{mcp.WithClientLogger(discardLogger())}, cfg.clientOptions...)
	s.client = mcp.NewClient(mcp.Info{Name: "test-client", Version: "1.0"}, clientTransport, clientOptions...)

	t.Cleanup(s.teardown)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	// The server finishes the handshake when it reads notifications/initialized, which may
	// happen after Connect returns.
	for !s.serverInitialized() {
		select {
		case <-ctx.Done():
			t.Fatal("server session never became initialized")
		case <-time.After(5 * time.Millisecond):
		}
	}
	return s
}

func (s *testSuite) serverInitialized() bool {
	for _, ss := range s.server.Sessions() {
		if ss.State() == mcp.StateInitialized {
			return true
		}
	}
	return false
}

func (s *testSuite) teardown() {
	s.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)

	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

func forEachTransport(t *testing.T, test func(t *testing.T, transportName string)) {
	for _, name := range transportNames {
		t.Run(name, func(t *testing.T) {
			test(t, name)
		})
	}
}

func TestInitialize(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		connected := make(chan *mcp.ServerSession, 1)
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			serverOptions: []mcp.ServerOption{
				mcp.WithInstructions("be nice"),
				mcp.WithPromptCapability(),
				mcp.WithServerOnClientConnected(func(ss *mcp.ServerSession) { connected <- ss }),
			},
			clientOptions: []mcp.ClientOption{
				mcp.WithSamplingHandler(mockSamplingHandler{}),
			},
			register: func(srv *mcp.Server) {
				srv.AddTool("echo", "Echoes text", mcp.TypedToolHandler(echoTool))
			},
		})

		if got := s.client.State(); got != mcp.StateInitialized {
			t.Errorf("client state = %s, want initialized", got)
		}
		if diff := cmp.Diff(mcp.Info{Name: "test-server", Version: "1.0"}, s.client.ServerInfo()); diff != "" {
			t.Errorf("server info mismatch (-want +got):\n%s", diff)
		}
		if got := s.client.ProtocolVersion(); got != mcp.LatestProtocolVersion {
			t.Errorf("protocol version = %q, want %q", got, mcp.LatestProtocolVersion)
		}
		if got := s.client.Instructions(); got != "be nice" {
			t.Errorf("instructions = %q", got)
		}

		caps := s.client.ServerCapabilities()
		if caps.Tools == nil || caps.Prompts == nil {
			t.Errorf("expected tools and prompts capabilities, got %+v", caps)
		}
		if caps.Resources != nil {
			t.Errorf("unexpected resources capability %+v", caps.Resources)
		}

		select {
		case ss := <-connected:
			if ss.ClientInfo().Name != "test-client" {
				t.Errorf("client info = %+v", ss.ClientInfo())
			}
			if ss.ClientCapabilities().Sampling == nil {
				t.Error("expected sampling capability from client")
			}
			if ss.State() != mcp.StateInitialized {
				t.Errorf("server session state = %s", ss.State())
			}
		case <-time.After(2 * time.Second):
			t.Fatal("OnClientConnected not called")
		}

		if err := s.client.Ping(context.Background()); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestTools(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			register: func(srv *mcp.Server) {
				srv.AddTool("echo", "Echoes text", mcp.TypedToolHandler(echoTool), mcp.WithInputSchemaOf[echoArgs]())
				srv.AddTool("fail", "Always fails", func(context.Context, *mcp.Request, json.RawMessage) (any, error) {
					return nil, errors.New("disk on fire")
				})
			},
		})
		ctx := context.Background()

		list, err := s.client.ListTools(ctx, mcp.ListToolsParams{})
		if err != nil {
			t.Fatalf("ListTools failed: %v", err)
		}
		var names []string
		for _, tool := range list.Tools {
			names = append(names, tool.Name)
		}
		if diff := cmp.Diff([]string{"echo", "fail"}, names); diff != "" {
			t.Errorf("tool names mismatch (-want +got):\n%s", diff)
		}
		if !strings.Contains(string(list.Tools[0].InputSchema), `"text"`) {
			t.Errorf("echo schema lacks text property: %s", list.Tools[0].InputSchema)
		}

		res, err := s.client.CallTool(ctx, mcp.CallToolParams{
			Name:      "echo",
			Arguments: []byte(`{"text":"hi","times":2}`),
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if diff := cmp.Diff([]mcp.Content{mcp.TextContent("hihi")}, res.Content); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}

		tests := []struct {
			name     string
			params   mcp.CallToolParams
			wantCode int
		}{
			{name: "unknown tool", params: mcp.CallToolParams{Name: "nope"}, wantCode: mcp.CodeNotFound},
			{name: "application error", params: mcp.CallToolParams{Name: "fail"}, wantCode: mcp.CodeApplicationError},
			{name: "arguments not an object", params: mcp.CallToolParams{Name: "echo", Arguments: []byte(`[1]`)}, wantCode: mcp.CodeInvalidParams},
			{name: "arguments of wrong type", params: mcp.CallToolParams{Name: "echo", Arguments: []byte(`{"text":1}`)}, wantCode: mcp.CodeInvalidParams},
		}
		for _, tt := range tests {
			_, err := s.client.CallTool(ctx, tt.params)
			var jsonErr mcp.JSONRPCError
			if !errors.As(err, &jsonErr) {
				t.Errorf("%s: expected JSONRPCError, got %v", tt.name, err)
				continue
			}
			if jsonErr.Code != tt.wantCode {
				t.Errorf("%s: code = %d, want %d", tt.name, jsonErr.Code, tt.wantCode)
			}
		}
	})
}

func TestToolProgress(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		watcher := newMockWatcher()
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			clientOptions: []mcp.ClientOption{mcp.WithProgressListener(watcher)},
			register: func(srv *mcp.Server) {
				srv.AddTool("work", "Reports progress", func(ctx context.Context, req *mcp.Request, _ json.RawMessage) (any, error) {
					if err := req.ReportProgress(ctx, 1, 2); err != nil {
						return nil, err
					}
					return "done", nil
				})
			},
		})

		token := mcp.NewStringID("tok")
		_, err := s.client.CallTool(context.Background(), mcp.CallToolParams{
			Name: "work",
			Meta: &mcp.ParamsMeta{ProgressToken: &token},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		watcher.wait(t, "progress tok 1/2")
	})
}

func TestPrompts(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			register: func(srv *mcp.Server) {
				srv.AddPrompt("review", "Code review", func(_ context.Context, _ *mcp.Request, args map[string]string) (any, error) {
					return "Please review " + args["file"], nil
				}, mcp.WithPromptArguments(mcp.PromptArgument{Name: "file", Required: true}))
			},
		})
		ctx := context.Background()

		list, err := s.client.ListPrompts(ctx, mcp.ListPromptsParams{})
		if err != nil {
			t.Fatalf("ListPrompts failed: %v", err)
		}
		want := []mcp.Prompt{{
			Name:        "review",
			Description: "Code review",
			Arguments:   []mcp.PromptArgument{{Name: "file", Required: true}},
		}}
		if diff := cmp.Diff(want, list.Prompts); diff != "" {
			t.Errorf("prompts mismatch (-want +got):\n%s", diff)
		}

		res, err := s.client.GetPrompt(ctx, mcp.GetPromptParams{
			Name:      "review",
			Arguments: map[string]string{"file": "main.go"},
		})
		if err != nil {
			t.Fatalf("GetPrompt failed: %v", err)
		}
		wantRes := mcp.GetPromptResult{
			Description: "Code review",
			Messages:    []mcp.PromptMessage{mcp.UserMessage("Please review main.go")},
		}
		if diff := cmp.Diff(wantRes, res); diff != "" {
			t.Errorf("prompt result mismatch (-want +got):\n%s", diff)
		}

		_, err = s.client.GetPrompt(ctx, mcp.GetPromptParams{Name: "review"})
		var jsonErr mcp.JSONRPCError
		if !errors.As(err, &jsonErr) || jsonErr.Code != mcp.CodeInvalidParams {
			t.Errorf("expected invalid params for missing argument, got %v", err)
		}

		_, err = s.client.GetPrompt(ctx, mcp.GetPromptParams{Name: "missing"})
		if !errors.As(err, &jsonErr) || jsonErr.Code != mcp.CodeNotFound {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestResources(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		watcher := newMockWatcher()
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			clientOptions: []mcp.ClientOption{mcp.WithResourceSubscribedWatcher(watcher)},
			register: func(srv *mcp.Server) {
				err := srv.AddResource("config://app", "config", "App config",
					func(context.Context, *mcp.Request, string, map[string]string) (any, error) {
						return "debug=true", nil
					}, mcp.WithResourceMimeType("text/plain"))
				if err != nil {
					t.Fatalf("AddResource failed: %v", err)
				}
				err = srv.AddResource("file://{path}", "files", "Files",
					func(_ context.Context, _ *mcp.Request, _ string, params map[string]string) (any, error) {
						return "contents of " + params["path"], nil
					})
				if err != nil {
					t.Fatalf("AddResource failed: %v", err)
				}
			},
		})
		ctx := context.Background()

		list, err := s.client.ListResources(ctx, mcp.ListResourcesParams{})
		if err != nil {
			t.Fatalf("ListResources failed: %v", err)
		}
		if len(list.Resources) != 1 || list.Resources[0].URI != "config://app" {
			t.Errorf("resources = %+v", list.Resources)
		}

		templates, err := s.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesParams{})
		if err != nil {
			t.Fatalf("ListResourceTemplates failed: %v", err)
		}
		if len(templates.Templates) != 1 || templates.Templates[0].URITemplate != "file://{path}" {
			t.Errorf("templates = %+v", templates.Templates)
		}

		res, err := s.client.ReadResource(ctx, mcp.ReadResourceParams{URI: "file://a/b.txt"})
		if err != nil {
			t.Fatalf("ReadResource failed: %v", err)
		}
		want := []mcp.ResourceContents{{URI: "file://a/b.txt", Text: "contents of a/b.txt"}}
		if diff := cmp.Diff(want, res.Contents); diff != "" {
			t.Errorf("contents mismatch (-want +got):\n%s", diff)
		}

		res, err = s.client.ReadResource(ctx, mcp.ReadResourceParams{URI: "CONFIG://APP"})
		if err != nil {
			t.Fatalf("ReadResource failed: %v", err)
		}
		want = []mcp.ResourceContents{{URI: "CONFIG://APP", MimeType: "text/plain", Text: "debug=true"}}
		if diff := cmp.Diff(want, res.Contents); diff != "" {
			t.Errorf("literal contents mismatch (-want +got):\n%s", diff)
		}

		_, err = s.client.ReadResource(ctx, mcp.ReadResourceParams{URI: "http://elsewhere"})
		var jsonErr mcp.JSONRPCError
		if !errors.As(err, &jsonErr) || jsonErr.Code != mcp.CodeNotFound {
			t.Errorf("expected not found, got %v", err)
		}

		if err := s.client.SubscribeResource(ctx, mcp.SubscribeResourceParams{URI: "file://watched.txt"}); err != nil {
			t.Fatalf("SubscribeResource failed: %v", err)
		}
		s.server.NotifyResourceUpdated(ctx, "file://watched.txt")
		watcher.wait(t, "updated file://watched.txt")

		if err := s.client.UnsubscribeResource(ctx, mcp.SubscribeResourceParams{URI: "file://watched.txt"}); err != nil {
			t.Fatalf("UnsubscribeResource failed: %v", err)
		}
	})
}

func TestListChangedNotifications(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		watcher := newMockWatcher()
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			clientOptions: []mcp.ClientOption{
				mcp.WithToolListWatcher(watcher),
				mcp.WithPromptListWatcher(watcher),
				mcp.WithResourceListWatcher(watcher),
			},
		})

		s.server.AddTool("late", "Registered after connect", mcp.TypedToolHandler(echoTool))
		watcher.wait(t, "tools")

		s.server.AddPrompt("late", "Registered after connect", func(context.Context, *mcp.Request, map[string]string) (any, error) {
			return "x", nil
		})
		watcher.wait(t, "prompts")

		err := s.server.AddResource("mem://late", "late", "", func(context.Context, *mcp.Request, string, map[string]string) (any, error) {
			return "x", nil
		})
		if err != nil {
			t.Fatalf("AddResource failed: %v", err)
		}
		watcher.wait(t, "resources")

		if !s.server.RemoveTool("late") {
			t.Error("RemoveTool reported missing tool")
		}
		watcher.wait(t, "tools")

		list, err := s.client.ListTools(context.Background(), mcp.ListToolsParams{})
		if err != nil {
			t.Fatalf("ListTools failed: %v", err)
		}
		if len(list.Tools) != 0 {
			t.Errorf("expected no tools after removal, got %+v", list.Tools)
		}
	})
}

func TestReRegistrationReplaces(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			register: func(srv *mcp.Server) {
				srv.AddTool("greet", "old", func(context.Context, *mcp.Request, json.RawMessage) (any, error) { return "old", nil })
				srv.AddTool("other", "", func(context.Context, *mcp.Request, json.RawMessage) (any, error) { return "", nil })
				srv.AddTool("greet", "new", func(context.Context, *mcp.Request, json.RawMessage) (any, error) { return "new", nil })
			},
		})
		ctx := context.Background()

		list, err := s.client.ListTools(ctx, mcp.ListToolsParams{})
		if err != nil {
			t.Fatalf("ListTools failed: %v", err)
		}
		if len(list.Tools) != 2 || list.Tools[0].Name != "greet" || list.Tools[0].Description != "new" {
			t.Errorf("tools = %+v", list.Tools)
		}

		res, err := s.client.CallTool(ctx, mcp.CallToolParams{Name: "greet"})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if res.Content[0].Text != "new" {
			t.Errorf("expected replaced handler, got %q", res.Content[0].Text)
		}
	})
}

func TestSampling(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		sampling := mockSamplingHandler{params: make(chan mcp.SamplingParams, 1)}
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			clientOptions: []mcp.ClientOption{mcp.WithSamplingHandler(sampling)},
			register: func(srv *mcp.Server) {
				srv.AddTool("ask", "Asks the model", func(ctx context.Context, req *mcp.Request, _ json.RawMessage) (any, error) {
					res, err := req.Session.CreateMessage(ctx, mcp.SamplingParams{
						Messages:  []mcp.SamplingMessage{{Role: mcp.RoleUser, Content: mcp.TextContent("2+2?")}},
						MaxTokens: 10,
					})
					if err != nil {
						return nil, err
					}
					return res.Content, nil
				})
			},
		})

		res, err := s.client.CallTool(context.Background(), mcp.CallToolParams{Name: "ask"})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if diff := cmp.Diff([]mcp.Content{mcp.TextContent("sampled answer")}, res.Content); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}

		params := <-sampling.params
		if params.MaxTokens != 10 || params.Messages[0].Content.Text != "2+2?" {
			t.Errorf("sampling params = %+v", params)
		}
	})
}

func TestSamplingWithoutHandler(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			register: func(srv *mcp.Server) {
				srv.AddTool("ask", "Asks the model", func(ctx context.Context, req *mcp.Request, _ json.RawMessage) (any, error) {
					_, err := req.Session.CreateMessage(ctx, mcp.SamplingParams{MaxTokens: 1})
					return nil, err
				})
			},
		})

		// The client's method not found error is passed through by the tool.
		_, err := s.client.CallTool(context.Background(), mcp.CallToolParams{Name: "ask"})
		var jsonErr mcp.JSONRPCError
		if !errors.As(err, &jsonErr) || jsonErr.Code != mcp.CodeMethodNotFound {
			t.Errorf("expected method not found, got %v", err)
		}
	})
}

func TestRoots(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		roots := []mcp.Root{{URI: "file:///workspace", Name: "workspace"}}
		watcher := mockRootsListWatcher{roots: make(chan []mcp.Root, 1)}
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			serverOptions: []mcp.ServerOption{mcp.WithRootsListWatcher(watcher)},
			clientOptions: []mcp.ClientOption{mcp.WithRootsListHandler(mockRootsListHandler{roots: roots})},
		})

		if err := s.client.NotifyRootsListChanged(context.Background()); err != nil {
			t.Fatalf("NotifyRootsListChanged failed: %v", err)
		}

		select {
		case got := <-watcher.roots:
			if diff := cmp.Diff(roots, got); diff != "" {
				t.Errorf("roots mismatch (-want +got):\n%s", diff)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("roots watcher not called")
		}
	})
}

func TestServerPingsClient(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		s := setupSuite(t, testSuiteConfig{transportName: transportName})

		sessions := s.server.Sessions()
		if len(sessions) != 1 {
			t.Fatalf("expected one session, got %d", len(sessions))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sessions[0].Ping(ctx); err != nil {
			t.Errorf("server ping failed: %v", err)
		}
	})
}

func TestClientCloseFailsCalls(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transportName string) {
		disconnected := make(chan struct{})
		s := setupSuite(t, testSuiteConfig{
			transportName: transportName,
			serverOptions: []mcp.ServerOption{
				mcp.WithServerOnClientDisconnected(func(*mcp.ServerSession) { close(disconnected) }),
			},
		})

		s.client.Close()
		if err := s.client.Ping(context.Background()); !errors.Is(err, mcp.ErrSessionClosed) {
			t.Errorf("expected ErrSessionClosed, got %v", err)
		}

		select {
		case <-disconnected:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not notice the disconnect")
		}
	})
}
