package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, readOnly bool) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	// Temp dirs may live behind symlinks on some platforms.
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return NewExecutor(ExecutorConfig{Workdir: resolved, ReadOnly: readOnly}), resolved
}

func TestExecuteShellCapturesOutputAndExit(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	res, err := e.Execute(context.Background(), Invocation{Name: "shell", Body: "echo hello; echo world >&2"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "hello")
	assert.Contains(t, res.Text, "world")

	res, err = e.Execute(context.Background(), Invocation{Name: "shell", Body: "exit 3"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "(exit code 3)")
}

func TestExecuteShellInterrupted(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := e.Execute(ctx, Invocation{Name: "shell", Body: "sleep 30"})
	require.NoError(t, err)
	assert.Equal(t, "(interrupted)", res.Text)
}

func TestWriteReadRoundTrip(t *testing.T) {
	e, dir := newTestExecutor(t, false)
	_, err := e.Execute(context.Background(), Invocation{Name: "write", Args: "notes/a.txt", Body: "line1\nline2\nline3"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "notes/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3", string(data))

	res, err := e.Execute(context.Background(), Invocation{Name: "read", Args: "notes/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3", res.Text)

	res, err = e.Execute(context.Background(), Invocation{Name: "read", Args: "notes/a.txt 2:3"})
	require.NoError(t, err)
	assert.Equal(t, "line2\nline3", res.Text)
}

func TestReadOnlyModeRejectsMutatingTools(t *testing.T) {
	e, _ := newTestExecutor(t, true)
	for _, name := range []string{"write", "patch"} {
		_, err := e.Execute(context.Background(), Invocation{Name: name, Args: "x.txt", Body: "data"})
		require.Error(t, err, name)
		var perm *PermissionError
		assert.ErrorAs(t, err, &perm, name)
	}
	// Non-mutating tools still work.
	_, err := e.Execute(context.Background(), Invocation{Name: "shell", Body: "true"})
	assert.NoError(t, err)
}

func TestPathEscapeRejected(t *testing.T) {
	e, dir := newTestExecutor(t, false)

	_, err := e.Execute(context.Background(), Invocation{Name: "read", Args: "../outside.txt"})
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	_, err = e.Execute(context.Background(), Invocation{Name: "read", Args: "link/secret.txt"})
	require.ErrorAs(t, err, &perm)
	_, err = e.Execute(context.Background(), Invocation{Name: "write", Args: "link/evil.txt", Body: "x"})
	require.ErrorAs(t, err, &perm)
}

func TestPolicyGlobs(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	e := NewExecutor(ExecutorConfig{
		Workdir: resolved,
		Policy: Policy{
			Hidden:   []string{"secrets/**"},
			ReadOnly: []string{"*.lock"},
		},
	})
	require.NoError(t, os.MkdirAll(filepath.Join(resolved, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resolved, "secrets/key.pem"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(resolved, "deps.lock"), []byte("v1"), 0o644))

	var perm *PermissionError
	_, err = e.Execute(context.Background(), Invocation{Name: "read", Args: "secrets/key.pem"})
	require.ErrorAs(t, err, &perm)

	res, err := e.Execute(context.Background(), Invocation{Name: "read", Args: "deps.lock"})
	require.NoError(t, err)
	assert.Equal(t, "v1", res.Text)
	_, err = e.Execute(context.Background(), Invocation{Name: "write", Args: "deps.lock", Body: "v2"})
	require.ErrorAs(t, err, &perm)
}

func TestPatchAppliesEditBlocks(t *testing.T) {
	e, dir := newTestExecutor(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))

	body := strings.Join([]string{
		"<<<<<<< SEARCH",
		"beta",
		"=======",
		"delta",
		">>>>>>> REPLACE",
	}, "\n")
	res, err := e.Execute(context.Background(), Invocation{Name: "patch", Args: "main.txt", Body: body})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "1 edits")

	data, err := os.ReadFile(filepath.Join(dir, "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha\ndelta\ngamma\n", string(data))
}

func TestPatchRejectsMissingAndAmbiguousSearch(t *testing.T) {
	e, dir := newTestExecutor(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.txt"), []byte("same\nsame\n"), 0o644))

	missing := "<<<<<<< SEARCH\nnope\n=======\nx\n>>>>>>> REPLACE"
	_, err := e.Execute(context.Background(), Invocation{Name: "patch", Args: "m.txt", Body: missing})
	var exec *ExecError
	require.ErrorAs(t, err, &exec)

	ambiguous := "<<<<<<< SEARCH\nsame\n=======\nx\n>>>>>>> REPLACE"
	_, err = e.Execute(context.Background(), Invocation{Name: "patch", Args: "m.txt", Body: ambiguous})
	require.ErrorAs(t, err, &exec)

	// The file is untouched after failed patches.
	data, readErr := os.ReadFile(filepath.Join(dir, "m.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, "same\nsame\n", string(data))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte("posted"))
			return
		}
		w.Write([]byte("fetched"))
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t, false)
	res, err := e.Execute(context.Background(), Invocation{Name: "fetch", Args: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "fetched", res.Text)

	res, err = e.Execute(context.Background(), Invocation{Name: "fetch", Args: srv.URL, Body: `{"k":"v"}`})
	require.NoError(t, err)
	assert.Equal(t, "posted", res.Text)

	_, err = e.Execute(context.Background(), Invocation{Name: "fetch", Args: "ftp://example.com/x"})
	var inv *InvocationError
	assert.ErrorAs(t, err, &inv)
}

func TestFetchReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t, false)
	res, err := e.Execute(context.Background(), Invocation{Name: "fetch", Args: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "HTTP 404")
}

func TestControlToolsAreNoOps(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	for _, name := range []string{"done", "wait"} {
		res, err := e.Execute(context.Background(), Invocation{Name: name})
		require.NoError(t, err)
		assert.Empty(t, res.Text)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	_, err := e.Execute(context.Background(), Invocation{Name: "telepathy"})
	var inv *InvocationError
	assert.ErrorAs(t, err, &inv)
}

func TestTaskRequiresSpawner(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	_, err := e.Execute(context.Background(), Invocation{Name: "task", Body: "summarize"})
	require.Error(t, err)

	e2 := NewExecutor(ExecutorConfig{
		Workdir: t.TempDir(),
		SpawnTask: func(_ context.Context, query string) (string, error) {
			return "answer to " + query, nil
		},
	})
	res, err := e2.Execute(context.Background(), Invocation{Name: "task", Body: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, "answer to summarize", res.Text)
}

func TestParseMCPArgs(t *testing.T) {
	m := parseMCPArgs("", `{"path": "a.txt", "depth": 2}`)
	assert.Equal(t, "a.txt", m["path"])

	m = parseMCPArgs(`{"q": "x"}`, "not json")
	assert.Equal(t, "x", m["q"])

	m = parseMCPArgs("raw args", "raw body")
	assert.Equal(t, "raw args", m["args"])
	assert.Equal(t, "raw body", m["body"])
}

func TestRegistryNamesAndBuiltins(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	names := e.Registry().Names()
	assert.Equal(t, []string{"done", "fetch", "patch", "read", "shell", "task", "wait", "write"}, names)
	assert.ElementsMatch(t, BuiltinNames(), names)

	assert.True(t, AllowedReadOnly("Read"))
	assert.False(t, AllowedReadOnly("write"))
	assert.True(t, AllowedReadOnly("done"))
	assert.False(t, AllowedReadOnly("wait"))
}

func TestSliceLines(t *testing.T) {
	text := "a\nb\nc\nd"
	got, err := sliceLines(text, "2:3")
	require.NoError(t, err)
	assert.Equal(t, "b\nc", got)

	got, err = sliceLines(text, ":2")
	require.NoError(t, err)
	assert.Equal(t, "a\nb", got)

	got, err = sliceLines(text, "3:")
	require.NoError(t, err)
	assert.Equal(t, "c\nd", got)

	_, err = sliceLines(text, "0:2")
	assert.Error(t, err)
}
