package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Role represents the role in a conversation (user or assistant).
type Role string

// ContentType tags which member of Content is populated.
type ContentType string

// Content is one item of tool output, prompt text or sampling text. Exactly the members that
// belong to Type are set.
type Content struct {
	Type ContentType `json:"type"`

	// For ContentTypeText
	Text string `json:"text,omitempty"`

	// For ContentTypeImage or ContentTypeAudio, base64 encoded.
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// For ContentTypeResource
	Resource *ResourceContents `json:"resource,omitempty"`
}

// ResourceContents represents either text or blob resource contents.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	// Blob holds base64 encoded binary contents.
	Blob string `json:"blob,omitempty"`
}

// PromptMessage is a role-tagged chat message.
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Role represents the role in a conversation (user or assistant).
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType represents the type of content in messages.
const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeResource ContentType = "resource"
)

const defaultBinaryMimeType = "application/octet-stream"

// TextContent returns a text content item.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ImageContent returns an image content item with the data base64 encoded.
func ImageContent(data []byte, mimeType string) Content {
	return Content{
		Type:     ContentTypeImage,
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}

// BlobContent returns an embedded binary resource. An empty mimeType means
// application/octet-stream.
func BlobContent(uri string, data []byte, mimeType string) Content {
	if mimeType == "" {
		mimeType = defaultBinaryMimeType
	}
	return Content{
		Type: ContentTypeResource,
		Resource: &ResourceContents{
			URI:      uri,
			MimeType: mimeType,
			Blob:     base64.StdEncoding.EncodeToString(data),
		},
	}
}

// UserMessage returns a prompt message with the user role and text content.
func UserMessage(text string) PromptMessage {
	return PromptMessage{Role: RoleUser, Content: TextContent(text)}
}

// AssistantMessage returns a prompt message with the assistant role and text content.
func AssistantMessage(text string) PromptMessage {
	return PromptMessage{Role: RoleAssistant, Content: TextContent(text)}
}

// Bytes decodes the base64 payload of a binary content item.
func (c Content) Bytes() ([]byte, error) {
	switch {
	case c.Resource != nil && c.Resource.Blob != "":
		return base64.StdEncoding.DecodeString(c.Resource.Blob)
	case c.Data != "":
		return base64.StdEncoding.DecodeString(c.Data)
	default:
		return nil, fmt.Errorf("content of type %q carries no binary data", c.Type)
	}
}

// Bytes decodes the base64 blob of binary resource contents.
func (r ResourceContents) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Blob)
}

func toolResult(v any) (CallToolResult, error) {
	switch v := v.(type) {
	case nil:
		return CallToolResult{Content: []Content{TextContent("")}}, nil
	case CallToolResult:
		if v.Content == nil {
			v.Content = []Content{}
		}
		return v, nil
	case *CallToolResult:
		if v == nil {
			return toolResult(nil)
		}
		return toolResult(*v)
	case string:
		return CallToolResult{Content: []Content{TextContent(v)}}, nil
	case []byte:
		return CallToolResult{Content: []Content{BlobContent("", v, "")}}, nil
	case Content:
		return CallToolResult{Content: []Content{v}}, nil
	case []Content:
		return CallToolResult{Content: v}, nil
	case PromptMessage:
		return CallToolResult{Content: []Content{v.Content}}, nil
	default:
		text, err := jsonText(v)
		if err != nil {
			return CallToolResult{}, err
		}
		return CallToolResult{Content: []Content{TextContent(text)}}, nil
	}
}

func promptResult(description string, v any) (GetPromptResult, error) {
	res := GetPromptResult{Description: description}
	switch v := v.(type) {
	case GetPromptResult:
		if v.Description == "" {
			v.Description = description
		}
		if v.Messages == nil {
			v.Messages = []PromptMessage{}
		}
		return v, nil
	case PromptMessage:
		res.Messages = []PromptMessage{v}
	case []PromptMessage:
		res.Messages = v
	case string:
		res.Messages = []PromptMessage{UserMessage(v)}
	case Content:
		res.Messages = []PromptMessage{{Role: RoleUser, Content: v}}
	case nil:
		res.Messages = []PromptMessage{}
	default:
		text, err := jsonText(v)
		if err != nil {
			return GetPromptResult{}, err
		}
		res.Messages = []PromptMessage{UserMessage(text)}
	}
	return res, nil
}

func resourceResult(uri, mimeType string, v any) (ReadResourceResult, error) {
	var contents []ResourceContents
	switch v := v.(type) {
	case ReadResourceResult:
		return v, nil
	case ResourceContents:
		contents = []ResourceContents{v}
	case []ResourceContents:
		contents = v
	case string:
		contents = []ResourceContents{{URI: uri, MimeType: mimeType, Text: v}}
	case []byte:
		if mimeType == "" {
			mimeType = defaultBinaryMimeType
		}
		contents = []ResourceContents{{
			URI:      uri,
			MimeType: mimeType,
			Blob:     base64.StdEncoding.EncodeToString(v),
		}}
	case PromptMessage:
		contents = []ResourceContents{contentAsResource(uri, mimeType, v.Content)}
	case Content:
		contents = []ResourceContents{contentAsResource(uri, mimeType, v)}
	case nil:
		contents = []ResourceContents{{URI: uri, MimeType: mimeType}}
	default:
		text, err := jsonText(v)
		if err != nil {
			return ReadResourceResult{}, err
		}
		if mimeType == "" {
			mimeType = "application/json"
		}
		contents = []ResourceContents{{URI: uri, MimeType: mimeType, Text: text}}
	}

	for i := range contents {
		if contents[i].URI == "" {
			contents[i].URI = uri
		}
	}
	return ReadResourceResult{Contents: contents}, nil
}

func contentAsResource(uri, mimeType string, c Content) ResourceContents {
	switch {
	case c.Resource != nil:
		return *c.Resource
	case c.Data != "":
		if c.MimeType != "" {
			mimeType = c.MimeType
		}
		return ResourceContents{URI: uri, MimeType: mimeType, Blob: c.Data}
	default:
		return ResourceContents{URI: uri, MimeType: mimeType, Text: c.Text}
	}
}

func jsonText(v any) (string, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal handler result: %w", err)
	}
	return string(bs), nil
}
