package workflow

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semtexzv/termineer-sub001/agent"
	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/grammar"
	"github.com/semtexzv/termineer-sub001/llm"
	"github.com/semtexzv/termineer-sub001/tools"
)

const sampleWorkflow = `
name: review
description: summarize a file
parameters:
  - name: target
    required: true
query_template: "Review ${parameters.target}"
steps:
  - kind: shell
    command: "wc -l < ${parameters.target}"
    store_as: line_count
  - kind: message
    content: "${query} (${line_count} lines)"
    await_reply: true
  - kind: output
    content: "agent said: ${agent_response}"
`

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorkflow), 0o644))

	wf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "review", wf.Name)
	require.Len(t, wf.Steps, 3)
	assert.Equal(t, StepShell, wf.Steps[0].Kind)

	all, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Contains(t, all, "review")
}

func TestLoadRejectsBadSteps(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"empty.yaml":   "name: empty\nsteps: []\n",
		"nocmd.yaml":   "steps:\n  - kind: shell\n",
		"badkind.yaml": "steps:\n  - kind: teleport\n",
		"badmode.yaml": "steps:\n  - kind: file\n    path: x\n    mode: truncate\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestBindParameters(t *testing.T) {
	wf := &Workflow{Parameters: []Parameter{
		{Name: "target", Required: true},
		{Name: "style", Default: "brief"},
	}}

	_, err := wf.BindParameters(nil)
	assert.Error(t, err)

	vars, err := wf.BindParameters(map[string]string{"target": "main.go"})
	require.NoError(t, err)
	assert.Equal(t, "main.go", vars["parameters.target"])
	assert.Equal(t, "brief", vars["parameters.style"])
}

func TestRender(t *testing.T) {
	vars := map[string]string{"parameters.target": "main.go", "query": "review it"}
	assert.Equal(t, "Review main.go: review it", Render("Review ${parameters.target}: ${query}", vars))
	assert.Equal(t, "missing ", Render("missing ${nope}", vars))
}

// replyBackend answers every call with the same text.
type replyBackend struct{ text string }

func (b *replyBackend) Send(context.Context, *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: []conversation.Content{{Kind: conversation.ContentText, Text: b.text}}}, nil
}
func (b *replyBackend) CountTokens(context.Context, []conversation.Message, string) (llm.Usage, error) {
	return llm.Usage{}, nil
}
func (b *replyBackend) MaxTokenLimit() int       { return 100000 }
func (b *replyBackend) SafeInputTokenLimit() int { return 80000 }
func (b *replyBackend) Name() string             { return "reply" }
func (b *replyBackend) Model() string            { return "reply-1" }

func TestExecutorRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := agent.NewManager(ctx)
	defer m.TerminateAll()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.txt"), []byte("one\ntwo\n"), 0o644))

	id, err := m.Create(agent.Config{
		Name:     "wf",
		Backend:  &replyBackend{text: "looks fine"},
		Grammar:  grammar.New("xml"),
		Executor: tools.NewExecutor(tools.ExecutorConfig{Workdir: dir}),
	})
	require.NoError(t, err)

	dirWf := t.TempDir()
	path := filepath.Join(dirWf, "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorkflow), 0o644))
	wf, err := Load(path)
	require.NoError(t, err)

	var out bytes.Buffer
	e := &Executor{Manager: m, AgentID: id, Workdir: dir, Output: &out}
	require.NoError(t, e.Run(ctx, wf, map[string]string{"target": "target.txt"}, ""))
	assert.Equal(t, "agent said: looks fine\n", out.String())
}

func TestExecutorFailFast(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := &Executor{Workdir: dir, Output: &bytes.Buffer{}}

	wf := &Workflow{Name: "failing", Steps: []Step{
		{Kind: StepShell, Command: "exit 7"},
		{Kind: StepOutput, Content: "unreachable"},
	}}
	err := e.Run(ctx, wf, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")

	// fail_on_error: false lets the run continue.
	off := false
	var out bytes.Buffer
	e.Output = &out
	wf.Steps[0].FailOnError = &off
	require.NoError(t, e.Run(ctx, wf, nil, ""))
	assert.Contains(t, out.String(), "unreachable")
}

func TestExecutorFileSteps(t *testing.T) {
	ctx := context.Background()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	var out bytes.Buffer
	e := &Executor{Workdir: dir, Output: &out}
	wf := &Workflow{Name: "files", Steps: []Step{
		{Kind: StepFile, Path: "notes.txt", Mode: "write", Content: "hello"},
		{Kind: StepFile, Path: "notes.txt", Mode: "append", Content: " world"},
		{Kind: StepFile, Path: "notes.txt", Mode: "read", StoreAs: "notes"},
		{Kind: StepOutput, Content: "${notes}"},
	}}
	require.NoError(t, e.Run(ctx, wf, nil, ""))
	assert.Equal(t, "hello world\n", out.String())

	escape := &Workflow{Name: "escape", Steps: []Step{
		{Kind: StepFile, Path: "../outside.txt", Mode: "write", Content: "x"},
	}}
	err = e.Run(ctx, escape, nil, "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "outside the working directory"))
}
