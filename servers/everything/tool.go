package everything

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/contextwire/go-mcp"
)

func (s *Server) registerTools(srv *mcp.Server) {
	srv.AddTool("echo", "Echoes back the input",
		mcp.TypedToolHandler(s.callEcho), mcp.WithInputSchemaOf[EchoArgs]())
	srv.AddTool("add", "Adds two numbers",
		mcp.TypedToolHandler(s.callAdd), mcp.WithInputSchemaOf[AddArgs]())
	srv.AddTool("longRunningOperation", "Demonstrates a long running operation with progress updates",
		mcp.TypedToolHandler(s.callLongRunningOperation), mcp.WithInputSchemaOf[LongRunningOperationArgs]())
	srv.AddTool("printEnv", "Prints all environment variables, helpful for debugging MCP server configuration",
		s.callPrintEnv)
	srv.AddTool("sampleLLM", "Samples from an LLM using MCP's sampling feature",
		mcp.TypedToolHandler(s.callSampleLLM), mcp.WithInputSchemaOf[SampleLLMArgs]())
	srv.AddTool("getTinyImage", "Returns the MCP_TINY_IMAGE", s.callGetTinyImage)
}

func (s *Server) callEcho(_ context.Context, _ *mcp.Request, args EchoArgs) (any, error) {
	return "Echo: " + args.Text, nil
}

func (s *Server) callAdd(_ context.Context, _ *mcp.Request, args AddArgs) (any, error) {
	return fmt.Sprintf("The sum of %g and %g is %g", args.A, args.B, args.A+args.B), nil
}

func (s *Server) callLongRunningOperation(ctx context.Context, req *mcp.Request, args LongRunningOperationArgs) (any, error) {
	if args.Duration <= 0 {
		args.Duration = 10
	}
	if args.Steps <= 0 {
		args.Steps = 5
	}
	stepDuration := time.Duration(args.Duration * float64(time.Second) / float64(args.Steps))

	for i := range args.Steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, fmt.Errorf("server closed")
		case <-time.After(stepDuration):
		}

		if err := req.ReportProgress(ctx, float64(i+1), float64(args.Steps)); err != nil {
			req.Logger().Warn("failed to report progress", slog.String("err", err.Error()))
		}
	}

	return fmt.Sprintf("Long running operation completed. Duration: %g seconds, Steps: %d", args.Duration, args.Steps), nil
}

func (s *Server) callPrintEnv(context.Context, *mcp.Request, json.RawMessage) (any, error) {
	return fmt.Sprintf("Environment variables:\n%s", strings.Join(os.Environ(), "\n")), nil
}

func (s *Server) callSampleLLM(ctx context.Context, req *mcp.Request, args SampleLLMArgs) (any, error) {
	if args.MaxTokens <= 0 {
		args.MaxTokens = 100
	}

	result, err := req.Session.CreateMessage(ctx, mcp.SamplingParams{
		Messages: []mcp.SamplingMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent(fmt.Sprintf("Resource sampleLLM context: %s", args.Prompt)),
			},
		},
		ModelPreferences: &mcp.SamplingModelPreferences{
			CostPriority:         1,
			SpeedPriority:        2,
			IntelligencePriority: 3,
		},
		SystemPrompt: "You are a helpful assistant.",
		MaxTokens:    args.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request sampling: %w", err)
	}

	return []mcp.Content{mcp.TextContent("LLM sampling result: " + result.Content.Text)}, nil
}

func (s *Server) callGetTinyImage(context.Context, *mcp.Request, json.RawMessage) (any, error) {
	return []mcp.Content{
		mcp.TextContent("This is a tiny image:"),
		{
			Type:     mcp.ContentTypeImage,
			Data:     tinyImage,
			MimeType: "image/png",
		},
		mcp.TextContent("The image above is the MCP tiny image."),
	}, nil
}
