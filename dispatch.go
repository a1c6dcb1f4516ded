package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

type serverMethod func(ss *ServerSession, ctx context.Context, req *Request, params json.RawMessage) (any, error)

// serverMethods is the method table for requests a client may send. Anything missing,
// including sampling/createMessage which only servers send, is answered with method not found.
var serverMethods = map[string]serverMethod{
	MethodPing:                   (*ServerSession).handlePing,
	MethodInitialize:             (*ServerSession).handleInitialize,
	MethodToolsList:              (*ServerSession).handleListTools,
	MethodToolsCall:              (*ServerSession).handleCallTool,
	MethodPromptsList:            (*ServerSession).handleListPrompts,
	MethodPromptsGet:             (*ServerSession).handleGetPrompt,
	MethodResourcesList:          (*ServerSession).handleListResources,
	MethodResourcesTemplatesList: (*ServerSession).handleListResourceTemplates,
	MethodResourcesRead:          (*ServerSession).handleReadResource,
	MethodResourcesSubscribe:     (*ServerSession).handleSubscribeResource,
	MethodResourcesUnsubscribe:   (*ServerSession).handleUnsubscribeResource,
}

func (ss *ServerSession) handlePing(context.Context, *Request, json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (ss *ServerSession) handleInitialize(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p initializeParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.ProtocolVersion == "" {
		return nil, invalidParamsError(errors.New("missing protocolVersion"))
	}

	version := negotiateProtocolVersion(p.ProtocolVersion)
	if version != p.ProtocolVersion {
		ss.logger.Info("client requested unsupported protocol version",
			slog.String("requested", p.ProtocolVersion),
			slog.String("answered", version))
	}

	ss.mu.Lock()
	ss.clientInfo = p.ClientInfo
	ss.clientCapabilities = p.Capabilities
	ss.protocolVersion = version
	ss.mu.Unlock()

	ss.state.advance(StateInitializing)

	return InitializeResult{
		ProtocolVersion: version,
		Capabilities:    ss.server.capabilities(),
		ServerInfo:      ss.server.info,
		Instructions:    ss.server.instructions,
	}, nil
}

func (ss *ServerSession) handleListTools(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p ListToolsParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	return ListToolsResult{Tools: ss.server.registry.listTools()}, nil
}

func (ss *ServerSession) handleCallTool(ctx context.Context, req *Request, params json.RawMessage) (any, error) {
	var p CallToolParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParamsError(errors.New("missing tool name"))
	}
	args, err := objectArguments(p.Arguments)
	if err != nil {
		return nil, err
	}

	entry, ok := ss.server.registry.tool(p.Name)
	if !ok {
		return nil, notFoundError(errMsgToolNotFound, p.Name)
	}

	res, err := entry.handler(ctx, req, args)
	if err != nil {
		return nil, toJSONRPCError(err)
	}
	result, err := toolResult(res)
	if err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

func (ss *ServerSession) handleListPrompts(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p ListPromptsParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	return ListPromptsResult{Prompts: ss.server.registry.listPrompts()}, nil
}

func (ss *ServerSession) handleGetPrompt(ctx context.Context, req *Request, params json.RawMessage) (any, error) {
	var p GetPromptParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParamsError(errors.New("missing prompt name"))
	}

	entry, ok := ss.server.registry.prompt(p.Name)
	if !ok {
		return nil, notFoundError(errMsgPromptNotFound, p.Name)
	}
	for _, arg := range entry.prompt.Arguments {
		if _, ok := p.Arguments[arg.Name]; arg.Required && !ok {
			return nil, invalidParamsError(fmt.Errorf("missing required argument %q", arg.Name))
		}
	}
	if p.Arguments == nil {
		p.Arguments = map[string]string{}
	}

	res, err := entry.handler(ctx, req, p.Arguments)
	if err != nil {
		return nil, toJSONRPCError(err)
	}
	result, err := promptResult(entry.prompt.Description, res)
	if err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

func (ss *ServerSession) handleListResources(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p ListResourcesParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	return ListResourcesResult{Resources: ss.server.registry.listResources()}, nil
}

func (ss *ServerSession) handleListResourceTemplates(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p ListResourceTemplatesParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	return ListResourceTemplatesResult{Templates: ss.server.registry.listResourceTemplates()}, nil
}

func (ss *ServerSession) handleReadResource(ctx context.Context, req *Request, params json.RawMessage) (any, error) {
	var p ReadResourceParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, invalidParamsError(errors.New("missing resource uri"))
	}

	entry, captured, ok := ss.server.registry.route(p.URI)
	if !ok {
		return nil, notFoundError(errMsgResourceNotFound, p.URI)
	}

	res, err := entry.handler(ctx, req, p.URI, captured)
	if err != nil {
		return nil, toJSONRPCError(err)
	}
	result, err := resourceResult(p.URI, entry.resource.MimeType, res)
	if err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

func (ss *ServerSession) handleSubscribeResource(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p SubscribeResourceParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, invalidParamsError(errors.New("missing resource uri"))
	}
	if _, _, ok := ss.server.registry.route(p.URI); !ok {
		return nil, notFoundError(errMsgResourceNotFound, p.URI)
	}
	ss.subscribe(p.URI)
	return struct{}{}, nil
}

func (ss *ServerSession) handleUnsubscribeResource(_ context.Context, _ *Request, params json.RawMessage) (any, error) {
	var p SubscribeResourceParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, invalidParamsError(errors.New("missing resource uri"))
	}
	ss.unsubscribe(p.URI)
	return struct{}{}, nil
}

// unmarshalParams decodes request params, treating absent params as an empty object.
func unmarshalParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return invalidParamsError(fmt.Errorf("failed to unmarshal params: %w", err))
	}
	return nil
}

// objectArguments accepts absent, null or object tool arguments.
func objectArguments(args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, invalidParamsError(errors.New("tool arguments must be a JSON object"))
	}
	return trimmed, nil
}

func internalError(err error) JSONRPCError {
	return JSONRPCError{
		Code:    CodeInternalError,
		Message: errMsgInternalError,
		Data:    err.Error(),
	}
}
