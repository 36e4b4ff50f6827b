// Package tools implements the agent's tool surface: the registry of
// built-in tools, invocation parsing, path safety, the read-only policy and
// dispatch to MCP-provided tools.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// Invocation is one parsed tool call: the remainder of the invocation's
// first line is Args, subsequent lines are Body. Silent suppresses buffer
// output for tools invoked internally.
type Invocation struct {
	Name   string
	Args   string
	Body   string
	Silent bool
}

// Result is a tool's output. Text is what the model sees; Content carries
// non-text payloads (images, documents) from MCP tools.
type Result struct {
	Text    string
	Content []conversation.Content
}

// HandlerFunc executes one tool invocation.
type HandlerFunc func(ctx context.Context, inv Invocation) (Result, error)

// Tool describes one registered tool.
type Tool struct {
	Name        string
	Description string
	// Mutating marks tools that change state outside the conversation.
	Mutating bool
	// Interruptible tools receive context cancellation on interrupt.
	Interruptible bool
	Run           HandlerFunc
}

// Registry maps lowercase tool names to their handlers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Names are case-insensitive; duplicates error.
func (r *Registry) Register(t *Tool) error {
	name := strings.ToLower(t.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return errors.New("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get looks up a tool by name, case-insensitively.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BuiltinNames lists the names reserved by built-in tools. MCP server
// registration rejects these.
func BuiltinNames() []string {
	return []string{"shell", "read", "write", "patch", "fetch", "task", "done", "wait"}
}

// readOnlyAllowed is the tool set a read-only agent may use.
var readOnlyAllowed = map[string]struct{}{
	"read":  {},
	"shell": {},
	"fetch": {},
	"done":  {},
	"task":  {},
}

// AllowedReadOnly reports whether a read-only agent may invoke name.
func AllowedReadOnly(name string) bool {
	_, ok := readOnlyAllowed[strings.ToLower(name)]
	return ok
}

// PermissionError is a path-safety or read-only-policy rejection.
type PermissionError struct {
	Path   string
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("permission denied: %s: %s", e.Path, e.Reason)
	}
	return "permission denied: " + e.Reason
}

// InvocationError means the invocation itself was malformed.
type InvocationError struct {
	Message string
}

func (e *InvocationError) Error() string { return "bad invocation: " + e.Message }

// ExecError is a tool that ran and failed.
type ExecError struct {
	ExitCode int
	Message  string
}

func (e *ExecError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("tool failed (exit %d): %s", e.ExitCode, e.Message)
	}
	return "tool failed: " + e.Message
}
