package mcp

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"
)

// ToolOption configures a tool at registration.
type ToolOption func(*toolEntry)

// PromptOption configures a prompt at registration.
type PromptOption func(*promptEntry)

// ResourceOption configures a resource at registration.
type ResourceOption func(*resourceEntry)

// registry holds everything one Server exposes. It is safe for registration to run while
// sessions are dispatching. Lists keep registration order and re-registering a name replaces
// the entry at its original position.
type registry struct {
	mu        sync.RWMutex
	tools     []*toolEntry
	prompts   []*promptEntry
	resources []*resourceEntry
	templates []*resourceEntry
}

type toolEntry struct {
	tool    Tool
	handler ToolHandler

	// err is set by an option that could not be applied.
	err error
}

type promptEntry struct {
	prompt  Prompt
	handler PromptHandler
}

type resourceEntry struct {
	template *URITemplate
	resource Resource
	handler  ResourceHandler
}

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// WithInputSchema sets the JSON schema advertised for the tool's arguments.
func WithInputSchema(schema json.RawMessage) ToolOption {
	return func(t *toolEntry) {
		t.tool.InputSchema = schema
	}
}

// WithPromptArguments declares the arguments a prompt accepts.
func WithPromptArguments(args ...PromptArgument) PromptOption {
	return func(p *promptEntry) {
		p.prompt.Arguments = append(p.prompt.Arguments, args...)
	}
}

// WithResourceMimeType sets the MIME type advertised for the resource and used for its contents.
func WithResourceMimeType(mimeType string) ResourceOption {
	return func(r *resourceEntry) {
		r.resource.MimeType = mimeType
	}
}

// WithResourceSize sets the size in bytes advertised for a literal resource.
func WithResourceSize(size int64) ResourceOption {
	return func(r *resourceEntry) {
		r.resource.Size = size
	}
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) addTool(e *toolEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools = upsert(r.tools, e, func(o *toolEntry) bool { return o.tool.Name == e.tool.Name })
}

func (r *registry) removeTool(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.tools)
	r.tools = slices.DeleteFunc(r.tools, func(o *toolEntry) bool { return o.tool.Name == name })
	return len(r.tools) != n
}

func (r *registry) tool(name string) (*toolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := slices.IndexFunc(r.tools, func(o *toolEntry) bool { return o.tool.Name == name })
	if i < 0 {
		return nil, false
	}
	return r.tools[i], true
}

func (r *registry) listTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	return tools
}

func (r *registry) addPrompt(e *promptEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts = upsert(r.prompts, e, func(o *promptEntry) bool { return o.prompt.Name == e.prompt.Name })
}

func (r *registry) removePrompt(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.prompts)
	r.prompts = slices.DeleteFunc(r.prompts, func(o *promptEntry) bool { return o.prompt.Name == name })
	return len(r.prompts) != n
}

func (r *registry) prompt(name string) (*promptEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := slices.IndexFunc(r.prompts, func(o *promptEntry) bool { return o.prompt.Name == name })
	if i < 0 {
		return nil, false
	}
	return r.prompts[i], true
}

func (r *registry) listPrompts() []Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompts := make([]Prompt, 0, len(r.prompts))
	for _, e := range r.prompts {
		prompts = append(prompts, e.prompt)
	}
	return prompts
}

func (r *registry) addResource(e *resourceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.template.IsLiteral() {
		r.resources = upsert(r.resources, e, func(o *resourceEntry) bool {
			return strings.EqualFold(o.resource.URI, e.resource.URI)
		})
		return
	}
	r.templates = upsert(r.templates, e, func(o *resourceEntry) bool {
		return o.resource.URI == e.resource.URI
	})
}

func (r *registry) removeResource(uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.resources) + len(r.templates)
	r.resources = slices.DeleteFunc(r.resources, func(o *resourceEntry) bool {
		return strings.EqualFold(o.resource.URI, uri)
	})
	r.templates = slices.DeleteFunc(r.templates, func(o *resourceEntry) bool {
		return o.resource.URI == uri
	})
	return len(r.resources)+len(r.templates) != n
}

// route resolves a concrete URI. Literal resources win, compared case-insensitively on the
// whole URI. Otherwise templates are tried in registration order and the first match wins.
func (r *registry) route(uri string) (*resourceEntry, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.resources {
		if strings.EqualFold(e.resource.URI, uri) {
			return e, map[string]string{}, true
		}
	}
	for _, e := range r.templates {
		if params, ok := e.template.Match(uri); ok {
			return e, params, true
		}
	}
	return nil, nil, false
}

func (r *registry) listResources() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resources := make([]Resource, 0, len(r.resources))
	for _, e := range r.resources {
		resources = append(resources, e.resource)
	}
	return resources
}

func (r *registry) listResourceTemplates() []ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := make([]ResourceTemplate, 0, len(r.templates))
	for _, e := range r.templates {
		templates = append(templates, ResourceTemplate{
			URITemplate: e.resource.URI,
			Name:        e.resource.Name,
			Description: e.resource.Description,
			MimeType:    e.resource.MimeType,
		})
	}
	return templates
}

func (r *registry) counts() (tools, prompts, resources int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools), len(r.prompts), len(r.resources) + len(r.templates)
}

func upsert[E any](list []E, e E, same func(E) bool) []E {
	if i := slices.IndexFunc(list, same); i >= 0 {
		list[i] = e
		return list
	}
	return append(list, e)
}
