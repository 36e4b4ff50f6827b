package mcp

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/errors"
)

// Registry tracks connected MCP servers and the tools they advertise.
// Tool names are matched case-insensitively and may not shadow reserved
// (built-in) names or tools from other servers.
type Registry struct {
	mu        sync.RWMutex
	reserved  map[string]struct{}
	providers map[string]*Provider
	tools     map[string]registeredTool
}

type registeredTool struct {
	provider *Provider
	desc     ToolDescriptor
}

// NewRegistry creates a registry. reserved lists tool names that servers
// may not claim.
func NewRegistry(reserved []string) *Registry {
	r := &Registry{
		reserved:  make(map[string]struct{}, len(reserved)),
		providers: make(map[string]*Provider),
		tools:     make(map[string]registeredTool),
	}
	for _, name := range reserved {
		r.reserved[strings.ToLower(name)] = struct{}{}
	}
	return r
}

// Register lists the provider's tools and adds them. A name collision with
// a reserved or already registered tool rejects the whole server.
func (r *Registry) Register(ctx context.Context, p *Provider) error {
	descs, err := p.ListTools(ctx)
	if err != nil {
		return errors.Wrapf(err, "mcp %s: cannot list tools", p.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		return errors.New("mcp server %q already registered", p.Name())
	}
	for _, desc := range descs {
		key := strings.ToLower(desc.Name)
		if _, ok := r.reserved[key]; ok {
			return errors.New("mcp %s: tool %q shadows a built-in tool", p.Name(), desc.Name)
		}
		if prev, ok := r.tools[key]; ok {
			return errors.New("mcp %s: tool %q already provided by server %q", p.Name(), desc.Name, prev.provider.Name())
		}
	}
	for _, desc := range descs {
		r.tools[strings.ToLower(desc.Name)] = registeredTool{provider: p, desc: desc}
	}
	r.providers[p.Name()] = p
	log.Debug().Str("server", p.Name()).Int("tools", len(descs)).Msg("mcp: server registered")
	return nil
}

// SetBuffer routes every connected server's stderr into b.
func (r *Registry) SetBuffer(b *buffer.Buffer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		p.conn.SetBuffer(b)
	}
}

// FindTool resolves a tool name to its provider and descriptor.
func (r *Registry) FindTool(name string) (*Provider, ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	if !ok {
		return nil, ToolDescriptor{}, false
	}
	return t.provider, t.desc, true
}

// Tools returns every registered descriptor, for prompt construction.
func (r *Registry) Tools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.desc)
	}
	return out
}

// CloseAll shuts every provider down. The first error wins.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	providers := r.providers
	r.providers = make(map[string]*Provider)
	r.tools = make(map[string]registeredTool)
	r.mu.Unlock()

	var first error
	for name, p := range providers {
		if err := p.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "mcp %s: close", name)
		}
	}
	return first
}
