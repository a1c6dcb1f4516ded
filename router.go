package mcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// URITemplate is a parsed resource URI pattern made of literal text and simple {name}
// placeholders, such as "file://{path}" or "items/{id}/detail".
type URITemplate struct {
	raw    string
	tokens []templateToken
	tmpl   *uritemplate.Template
}

type templateToken struct {
	literal string
	name    string
}

// ParseURITemplate parses and validates a resource URI pattern. Placeholders must be simple
// names without operators, modifiers or comma lists, and two placeholders must be separated by
// literal text so that every capture is unambiguous.
func ParseURITemplate(pattern string) (*URITemplate, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidTemplate)
	}
	if !strings.ContainsAny(pattern, "{}") {
		return &URITemplate{raw: pattern, tokens: []templateToken{{literal: pattern}}}, nil
	}

	tmpl, err := uritemplate.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTemplate, pattern, err)
	}

	var tokens []templateToken
	seen := make(map[string]bool)
	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			open = len(rest)
		}
		if strings.IndexByte(rest[:open], '}') >= 0 {
			return nil, fmt.Errorf("%w %q: unbalanced braces", ErrInvalidTemplate, pattern)
		}
		if open == len(rest) {
			tokens = append(tokens, templateToken{literal: rest})
			break
		}
		if open > 0 {
			tokens = append(tokens, templateToken{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("%w %q: unclosed placeholder", ErrInvalidTemplate, pattern)
		}
		name := rest[open+1 : open+end]
		if !isPlainVarname(name) {
			return nil, fmt.Errorf("%w %q: unsupported expression {%s}", ErrInvalidTemplate, pattern, name)
		}
		if n := len(tokens); n > 0 && tokens[n-1].name != "" {
			return nil, fmt.Errorf("%w %q: placeholders {%s} and {%s} are adjacent",
				ErrInvalidTemplate, pattern, tokens[n-1].name, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w %q: placeholder {%s} is repeated", ErrInvalidTemplate, pattern, name)
		}
		seen[name] = true
		tokens = append(tokens, templateToken{name: name})
		rest = rest[open+end+1:]
	}

	return &URITemplate{raw: pattern, tokens: tokens, tmpl: tmpl}, nil
}

func isPlainVarname(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// String returns the pattern the template was parsed from.
func (t *URITemplate) String() string {
	return t.raw
}

// IsLiteral reports whether the pattern has no placeholders.
func (t *URITemplate) IsLiteral() bool {
	for _, tok := range t.tokens {
		if tok.name != "" {
			return false
		}
	}
	return true
}

// Varnames returns the placeholder names in pattern order.
func (t *URITemplate) Varnames() []string {
	var names []string
	for _, tok := range t.tokens {
		if tok.name != "" {
			names = append(names, tok.name)
		}
	}
	return names
}

// Expand builds a concrete URI by substituting params into the placeholders. Values are
// percent-encoded as URI template simple expansion requires.
func (t *URITemplate) Expand(params map[string]string) (string, error) {
	if t.tmpl == nil {
		return t.raw, nil
	}
	values := uritemplate.Values{}
	for k, v := range params {
		values.Set(k, uritemplate.String(v))
	}
	uri, err := t.tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("failed to expand template %q: %w", t.raw, err)
	}
	return uri, nil
}

// Match reports whether uri is claimed by the template and returns the percent-decoded values
// of its placeholders. Literal text is compared exactly. A placeholder captures everything up
// to the first occurrence of the literal text that follows it, or to the end of the URI when it
// is the last token; a last placeholder must capture at least one character. The whole URI must
// be consumed.
func (t *URITemplate) Match(uri string) (map[string]string, bool) {
	params := make(map[string]string)
	cursor := 0

	for i, tok := range t.tokens {
		if tok.name == "" {
			if !strings.HasPrefix(uri[cursor:], tok.literal) {
				return nil, false
			}
			cursor += len(tok.literal)
			continue
		}

		if i == len(t.tokens)-1 {
			if cursor == len(uri) {
				return nil, false
			}
			params[tok.name] = unescapeCapture(uri[cursor:])
			cursor = len(uri)
			continue
		}

		// Parsing guarantees the next token is literal text.
		next := t.tokens[i+1].literal
		idx := strings.Index(uri[cursor:], next)
		if idx < 0 {
			return nil, false
		}
		params[tok.name] = unescapeCapture(uri[cursor : cursor+idx])
		cursor += idx
	}

	if cursor != len(uri) {
		return nil, false
	}
	return params, true
}

func unescapeCapture(s string) string {
	v, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return v
}
