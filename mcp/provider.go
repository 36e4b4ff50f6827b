package mcp

import (
	"context"
	"encoding/base64"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// ToolDescriptor is one tool advertised by an MCP server.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// Provider wraps a connection to one MCP server and exposes its tools.
type Provider struct {
	name string
	conn *Conn
}

// NewProvider wraps an established connection.
func NewProvider(name string, conn *Conn) *Provider {
	return &Provider{name: name, conn: conn}
}

// Name is the configured server name.
func (p *Provider) Name() string { return p.name }

// Close tears down the server connection.
func (p *Provider) Close() error { return p.conn.Close() }

// ListTools fetches the server's full tool catalog, following pagination
// cursors until exhausted.
func (p *Provider) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var out []ToolDescriptor
	cursor := ""
	for {
		params := map[string]interface{}{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		raw, err := p.conn.Call(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}
		var page struct {
			Tools      []ToolDescriptor `json:"tools"`
			NextCursor string           `json:"nextCursor"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, errors.Wrapf(err, "mcp %s: bad tools/list result", p.name)
		}
		out = append(out, page.Tools...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// Call invokes one tool. The server's content blocks are converted to
// conversation content; a result flagged isError becomes an error carrying
// the combined text.
func (p *Provider) Call(ctx context.Context, tool string, args map[string]interface{}) ([]conversation.Content, error) {
	raw, err := p.conn.Call(ctx, "tools/call", map[string]interface{}{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			Data     string `json:"data"`
			MimeType string `json:"mimeType"`
			Resource *struct {
				URI      string `json:"uri"`
				MimeType string `json:"mimeType"`
				Text     string `json:"text"`
				Blob     string `json:"blob"`
			} `json:"resource"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrapf(err, "mcp %s: bad tools/call result", p.name)
	}

	var content []conversation.Content
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			content = append(content, conversation.Content{Kind: conversation.ContentText, Text: block.Text})
		case "image":
			// Content.Data carries the base64 text as-is; decode only to
			// reject junk payloads.
			if _, err := base64.StdEncoding.DecodeString(block.Data); err != nil {
				log.Debug().Str("server", p.name).Err(err).Msg("mcp: bad image payload")
				continue
			}
			content = append(content, conversation.Content{
				Kind:      conversation.ContentImage,
				MediaType: block.MimeType,
				Data:      block.Data,
			})
		case "resource":
			if block.Resource == nil {
				continue
			}
			if block.Resource.Text != "" {
				content = append(content, conversation.Content{Kind: conversation.ContentText, Text: block.Resource.Text})
				continue
			}
			if _, err := base64.StdEncoding.DecodeString(block.Resource.Blob); err != nil {
				continue
			}
			content = append(content, conversation.Content{
				Kind:      conversation.ContentDocument,
				MediaType: block.Resource.MimeType,
				Data:      block.Resource.Blob,
			})
		default:
			log.Debug().Str("server", p.name).Str("type", block.Type).Msg("mcp: unhandled content block")
		}
	}

	if result.IsError {
		msg := "tool reported an error"
		for _, c := range content {
			if c.Kind == conversation.ContentText && c.Text != "" {
				msg = c.Text
				break
			}
		}
		return content, errors.New("mcp %s: %s: %s", p.name, tool, msg)
	}
	return content, nil
}
