// Package mcp implements the Model Context Protocol (MCP), a JSON-RPC 2.0 based protocol that
// connects an LLM host to context servers. A client discovers and invokes the tools a server
// exposes, reads its resources and renders its prompts; the server may in turn ask the client's
// model for a completion (sampling) or for the client's roots.
//
// Both peers share one engine. Every Session, whatever the transport, is driven by a read loop
// that classifies each inbound frame: requests are served concurrently by the registered
// handlers, responses are matched to outstanding calls by id (never by order), and
// notifications update session state or reach the configured watchers.
//
// A server registers tools, prompts and resources on a Server and serves a ServerTransport:
//
//	srv := mcp.NewServer(mcp.Info{Name: "demo", Version: "1.0.0"}, mcp.NewStdIO(os.Stdin, os.Stdout))
//	srv.AddTool("echo", "Echoes its input", echo, mcp.WithInputSchemaOf[EchoArgs]())
//	if err := srv.AddResource("file://{path}", "files", "Project files", readFile); err != nil {
//		return err
//	}
//	go srv.Serve()
//
// Resource URIs may be literal or RFC 6570 level-1 templates such as "items/{id}/detail"; the
// values captured from a concrete URI are passed to the handler percent-decoded.
//
// A client connects over a ClientTransport, which performs the initialize handshake:
//
//	cli := mcp.NewClient(mcp.Info{Name: "host", Version: "1.0.0"}, transport)
//	if err := cli.Connect(ctx); err != nil {
//		return err
//	}
//	defer cli.Close()
//	res, err := cli.CallTool(ctx, mcp.CallToolParams{Name: "echo", Arguments: args})
//
// Two transports are provided: StdIO frames one JSON document per line over a reader and writer
// pair, and SSEServer/SSEClient carry client messages in HTTP POST bodies and server messages on
// a Server-Sent Events stream.
package mcp
