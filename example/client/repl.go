package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/contextwire/go-mcp"
)

const commandTimeout = time.Minute

const help = `commands:
  info                       server details and capabilities
  ping                       check the connection
  tools                      list tools
  call <tool> [key=value]    call a tool; values are typed, {..} and [..] are JSON
  prompts                    list prompts
  prompt <name> [key=value]  get a prompt
  resources                  list resources
  templates                  list resource templates
  read <uri>                 read a resource
  subscribe <uri>            watch a resource for updates
  unsubscribe <uri>          stop watching a resource
  exit                       disconnect`

type repl struct {
	client *mcp.Client
	rl     *readline.Instance
	out    io.Writer
}

func (r *repl) run() error {
	for {
		line, err := r.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		if words[0] == "exit" || words[0] == "quit" {
			return nil
		}

		select {
		case <-r.client.Done():
			return errors.New("server disconnected")
		default:
		}

		if err := r.exec(words[0], words[1:]); err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
	}
}

func (r *repl) exec(cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd {
	case "help":
		fmt.Fprintln(r.out, help)
		return nil
	case "info":
		return r.info()
	case "ping":
		start := time.Now()
		if err := r.client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "pong in %s\n", time.Since(start).Round(time.Microsecond))
		return nil
	case "tools":
		return r.tools(ctx)
	case "call":
		return r.call(ctx, args)
	case "prompts":
		return r.prompts(ctx)
	case "prompt":
		return r.prompt(ctx, args)
	case "resources":
		return r.resources(ctx)
	case "templates":
		return r.templates(ctx)
	case "read":
		if len(args) != 1 {
			return errors.New("usage: read <uri>")
		}
		return r.read(ctx, args[0])
	case "subscribe", "unsubscribe":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <uri>", cmd)
		}
		params := mcp.SubscribeResourceParams{URI: args[0]}
		if cmd == "subscribe" {
			return r.client.SubscribeResource(ctx, params)
		}
		return r.client.UnsubscribeResource(ctx, params)
	default:
		return fmt.Errorf("unknown command %q, type help", cmd)
	}
}

func (r *repl) info() error {
	info := r.client.ServerInfo()
	caps, err := json.MarshalIndent(r.client.ServerCapabilities(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "server: %s %s\nprotocol: %s\ncapabilities: %s\n",
		info.Name, info.Version, r.client.ProtocolVersion(), caps)
	return nil
}

func (r *repl) tools(ctx context.Context) error {
	res, err := r.client.ListTools(ctx, mcp.ListToolsParams{})
	if err != nil {
		return err
	}
	for _, tool := range res.Tools {
		fmt.Fprintf(r.out, "%s - %s\n", tool.Name, tool.Description)
	}
	return nil
}

func (r *repl) call(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: call <tool> [key=value ...]")
	}
	arguments, err := parseArgs(args[1:])
	if err != nil {
		return err
	}

	// A progress token lets long running tools report back while the call runs.
	token := mcp.NewStringID(fmt.Sprintf("repl-%d", time.Now().UnixNano()))
	res, err := r.client.CallTool(ctx, mcp.CallToolParams{
		Name:      args[0],
		Arguments: arguments,
		Meta:      &mcp.ParamsMeta{ProgressToken: &token},
	})
	if err != nil {
		return err
	}
	if res.IsError {
		fmt.Fprintln(r.out, "tool reported an error:")
	}
	for _, c := range res.Content {
		r.printContent(c)
	}
	return nil
}

func (r *repl) prompts(ctx context.Context) error {
	res, err := r.client.ListPrompts(ctx, mcp.ListPromptsParams{})
	if err != nil {
		return err
	}
	for _, prompt := range res.Prompts {
		fmt.Fprintf(r.out, "%s - %s\n", prompt.Name, prompt.Description)
		for _, arg := range prompt.Arguments {
			required := ""
			if arg.Required {
				required = " (required)"
			}
			fmt.Fprintf(r.out, "    %s%s: %s\n", arg.Name, required, arg.Description)
		}
	}
	return nil
}

func (r *repl) prompt(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: prompt <name> [key=value ...]")
	}
	arguments, err := parseStringArgs(args[1:])
	if err != nil {
		return err
	}
	res, err := r.client.GetPrompt(ctx, mcp.GetPromptParams{Name: args[0], Arguments: arguments})
	if err != nil {
		return err
	}
	if res.Description != "" {
		fmt.Fprintln(r.out, res.Description)
	}
	for _, msg := range res.Messages {
		fmt.Fprintf(r.out, "[%s] ", msg.Role)
		r.printContent(msg.Content)
	}
	return nil
}

func (r *repl) resources(ctx context.Context) error {
	res, err := r.client.ListResources(ctx, mcp.ListResourcesParams{})
	if err != nil {
		return err
	}
	for _, resource := range res.Resources {
		fmt.Fprintf(r.out, "%s - %s", resource.URI, resource.Name)
		if resource.MimeType != "" {
			fmt.Fprintf(r.out, " (%s)", resource.MimeType)
		}
		fmt.Fprintln(r.out)
	}
	return nil
}

func (r *repl) templates(ctx context.Context) error {
	res, err := r.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesParams{})
	if err != nil {
		return err
	}
	for _, tmpl := range res.Templates {
		fmt.Fprintf(r.out, "%s - %s\n", tmpl.URITemplate, tmpl.Name)
	}
	return nil
}

func (r *repl) read(ctx context.Context, uri string) error {
	res, err := r.client.ReadResource(ctx, mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return err
	}
	for _, c := range res.Contents {
		if c.Blob != "" {
			bs, err := c.Bytes()
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "%s: %d bytes of %s\n", c.URI, len(bs), c.MimeType)
			continue
		}
		fmt.Fprintln(r.out, c.Text)
	}
	return nil
}

func (r *repl) printContent(c mcp.Content) {
	switch {
	case c.Data != "":
		bs, _ := c.Bytes()
		fmt.Fprintf(r.out, "[%s, %d bytes]\n", c.MimeType, len(bs))
	case c.Resource != nil:
		fmt.Fprintf(r.out, "[resource %s]\n", c.Resource.URI)
	default:
		fmt.Fprintln(r.out, c.Text)
	}
}

// events prints what the server pushes and answers its requests. Sampling is answered by
// echoing the last message back, since there is no model behind this client.
type events struct {
	mu  sync.Mutex
	out io.Writer
}

func (e *events) printf(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fmt.Fprintf(e.out, format, args...)
}

func (e *events) CreateSampleMessage(_ context.Context, params mcp.SamplingParams) (mcp.SamplingResult, error) {
	if len(params.Messages) == 0 {
		return mcp.SamplingResult{}, errors.New("no messages to sample from")
	}
	last := params.Messages[len(params.Messages)-1]
	e.printf("* sampling requested: %s\n", last.Content.Text)
	return mcp.SamplingResult{
		Role:       mcp.RoleAssistant,
		Content:    mcp.TextContent("echo: " + last.Content.Text),
		Model:      "echo",
		StopReason: "endTurn",
	}, nil
}

func (e *events) RootsList(context.Context) (mcp.RootList, error) {
	wd, err := os.Getwd()
	if err != nil {
		return mcp.RootList{}, err
	}
	u := url.URL{Scheme: "file", Path: wd}
	return mcp.RootList{Roots: []mcp.Root{{URI: u.String(), Name: "working directory"}}}, nil
}

func (e *events) OnProgress(params mcp.ProgressParams) {
	if params.Total > 0 {
		e.printf("* progress %s: %g/%g\n", params.ProgressToken, params.Progress, params.Total)
		return
	}
	e.printf("* progress %s: %g\n", params.ProgressToken, params.Progress)
}

func (e *events) OnToolListChanged() {
	e.printf("* tool list changed\n")
}

func (e *events) OnPromptListChanged() {
	e.printf("* prompt list changed\n")
}

func (e *events) OnResourceListChanged() {
	e.printf("* resource list changed\n")
}

func (e *events) OnResourceSubscribedChanged(uri string) {
	e.printf("* resource updated: %s\n", uri)
}
