package everything

import (
	"context"
	"fmt"

	"github.com/contextwire/go-mcp"
)

func (s *Server) registerPrompts(srv *mcp.Server) {
	srv.AddPrompt("simple_prompt", "A prompt without arguments", s.getSimplePrompt)
	srv.AddPrompt("complex_prompt", "A prompt with arguments",
		mcp.TypedPromptHandler(s.getComplexPrompt), mcp.WithPromptArgumentsOf[ComplexPromptArgs]())
}

func (s *Server) getSimplePrompt(context.Context, *mcp.Request, map[string]string) (any, error) {
	return "This is a simple prompt without arguments.", nil
}

func (s *Server) getComplexPrompt(_ context.Context, _ *mcp.Request, args ComplexPromptArgs) (any, error) {
	return []mcp.PromptMessage{
		mcp.UserMessage(fmt.Sprintf("This is a complex prompt with arguments: temperature=%g, style=%s",
			args.Temperature, args.Style)),
		mcp.AssistantMessage("I understand. You've provided a complex prompt with temperature and style arguments. " +
			"How would you like me to proceed?"),
		{
			Role: mcp.RoleUser,
			Content: mcp.Content{
				Type:     mcp.ContentTypeImage,
				Data:     tinyImage,
				MimeType: "image/png",
			},
		},
	}, nil
}
