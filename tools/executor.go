package tools

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/mcp"
)

// ExecutorConfig configures a tool executor.
type ExecutorConfig struct {
	// Workdir is the sandbox root for all file tools.
	Workdir string
	// ReadOnly restricts the agent to the non-mutating tool set.
	ReadOnly bool
	// Policy adds configured glob restrictions.
	Policy Policy
	// MCP resolves tool names no built-in claims. Optional.
	MCP *mcp.Registry
	// SpawnTask runs a query on a fresh read-only sub-agent and returns
	// its final message. Wired by the agent runtime; nil disables the
	// task tool.
	SpawnTask func(ctx context.Context, query string) (string, error)
}

// Executor routes parsed invocations to built-in handlers or MCP
// providers. It does not interpret tool arguments beyond splitting them.
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
}

// NewExecutor builds an executor with the full built-in tool set.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{registry: NewRegistry(), cfg: cfg}
	for _, t := range []*Tool{
		{Name: "shell", Description: "Execute a shell command; the command is the invocation body.", Mutating: true, Interruptible: true, Run: e.runShell},
		{Name: "read", Description: "Read a file inside the working directory, optionally by line range.", Run: e.runRead},
		{Name: "write", Description: "Write the body to a file inside the working directory.", Mutating: true, Run: e.runWrite},
		{Name: "patch", Description: "Apply search/replace edit blocks to a file, atomically.", Mutating: true, Run: e.runPatch},
		{Name: "fetch", Description: "HTTP GET or POST a URL; the response body is size-limited.", Interruptible: true, Run: e.runFetch},
		{Name: "task", Description: "Spawn a read-only sub-assistant for the query in the body and wait for its answer.", Interruptible: true, Run: e.runTask},
		{Name: "done", Description: "Mark the current turn complete."},
		{Name: "wait", Description: "Pause and wait for the next user message."},
	} {
		// Registration of a fixed built-in set cannot collide.
		_ = e.registry.Register(t)
	}
	return e
}

// SetSpawnTask installs the sub-agent spawner after construction. The
// runtime needs the executor first to build the agent config the spawner
// closes over.
func (e *Executor) SetSpawnTask(spawn func(ctx context.Context, query string) (string, error)) {
	e.cfg.SpawnTask = spawn
}

// ReadOnlyClone derives an executor with the same sandbox and policy but
// the read-only tool set and no sub-agent spawning, for task sub-agents.
func (e *Executor) ReadOnlyClone() *Executor {
	cfg := e.cfg
	cfg.ReadOnly = true
	cfg.SpawnTask = nil
	return NewExecutor(cfg)
}

// Registry exposes the built-in catalog, e.g. for prompt construction.
func (e *Executor) Registry() *Registry { return e.registry }

// ReadOnly reports whether the executor enforces the read-only tool set.
func (e *Executor) ReadOnly() bool { return e.cfg.ReadOnly }

// Lookup reports whether name resolves to a built-in or MCP tool, and
// whether an interrupt can target it.
func (e *Executor) Lookup(name string) (interruptible bool, ok bool) {
	if t, found := e.registry.Get(name); found {
		return t.Interruptible, true
	}
	if e.cfg.MCP != nil {
		if _, _, found := e.cfg.MCP.FindTool(name); found {
			return true, true
		}
	}
	return false, false
}

// Execute runs one invocation. Read-only agents are limited to the
// non-mutating tool set; names no built-in claims are tried against the
// MCP registry.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	name := strings.ToLower(strings.TrimSpace(inv.Name))
	if name == "" {
		return Result{}, &InvocationError{Message: "empty tool name"}
	}
	if e.cfg.ReadOnly && !AllowedReadOnly(name) {
		return Result{}, &PermissionError{Reason: "tool " + name + " is not available in read-only mode"}
	}

	if t, ok := e.registry.Get(name); ok {
		if t.Run == nil {
			// done and wait are control markers handled by the agent loop.
			return Result{}, nil
		}
		return t.Run(ctx, inv)
	}

	if e.cfg.MCP != nil {
		if provider, desc, ok := e.cfg.MCP.FindTool(name); ok {
			return e.callMCP(ctx, provider, desc.Name, inv)
		}
	}
	return Result{}, &InvocationError{Message: "unknown tool " + name}
}

// callMCP parses the invocation into a JSON argument object and delegates
// to the provider. The body is preferred when it is a JSON object, then
// the args; otherwise both are passed through as strings.
func (e *Executor) callMCP(ctx context.Context, provider *mcp.Provider, tool string, inv Invocation) (Result, error) {
	args := parseMCPArgs(inv.Args, inv.Body)
	content, err := provider.Call(ctx, tool, args)
	if err != nil {
		return Result{}, err
	}
	var text strings.Builder
	for _, c := range content {
		if c.Kind == conversation.ContentText {
			text.WriteString(c.Text)
		}
	}
	return Result{Text: text.String(), Content: content}, nil
}

func parseMCPArgs(args, body string) map[string]interface{} {
	if m, ok := jsonObject(body); ok {
		return m
	}
	if m, ok := jsonObject(args); ok {
		return m
	}
	return map[string]interface{}{"args": args, "body": body}
}

func jsonObject(s string) (map[string]interface{}, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

// runTask delegates to the runtime-provided sub-agent spawner.
func (e *Executor) runTask(ctx context.Context, inv Invocation) (Result, error) {
	if e.cfg.SpawnTask == nil {
		return Result{}, &InvocationError{Message: "sub-assistants are not available here"}
	}
	query := strings.TrimSpace(inv.Body)
	if query == "" {
		query = strings.TrimSpace(inv.Args)
	}
	if query == "" {
		return Result{}, &InvocationError{Message: "task requires a query in the body"}
	}
	answer, err := e.cfg.SpawnTask(ctx, query)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: answer}, nil
}
