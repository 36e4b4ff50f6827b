package workflow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/semtexzv/termineer-sub001/agent"
	"github.com/semtexzv/termineer-sub001/errors"
	"github.com/semtexzv/termineer-sub001/tools"
)

// Executor runs workflows against a single target agent.
type Executor struct {
	Manager *agent.Manager
	AgentID int64
	// Workdir bounds file steps the same way the file tools are bounded.
	Workdir string
	// Output receives output steps and defaults to stdout.
	Output io.Writer
	// Input serves wait steps and defaults to stdin.
	Input io.Reader
}

func (e *Executor) output() io.Writer {
	if e.Output != nil {
		return e.Output
	}
	return os.Stdout
}

func (e *Executor) input() io.Reader {
	if e.Input != nil {
		return e.Input
	}
	return os.Stdin
}

// Run executes the workflow steps in order. Template fields see
// ${parameters.*}, ${query}, ${agent_response} and any ${store_as}
// variables from earlier steps. The first failing step aborts the run
// unless it sets fail_on_error: false.
func (e *Executor) Run(ctx context.Context, wf *Workflow, params map[string]string, extraQuery string) error {
	vars, err := wf.BindParameters(params)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(Render(wf.QueryTemplate, vars))
	if extraQuery != "" {
		if query != "" {
			query += "\n" + extraQuery
		} else {
			query = extraQuery
		}
	}
	vars["query"] = query
	vars["agent_response"] = ""

	for i, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.runStep(ctx, step, vars)
		if err != nil {
			if step.failFast() {
				return errors.Wrapf(err, "workflow %s: step %d (%s) failed", wf.Name, i+1, step.Kind)
			}
			log.Warn().Str("workflow", wf.Name).Int("step", i+1).Err(err).Msg("step failed, continuing")
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, step Step, vars map[string]string) error {
	switch step.Kind {
	case StepShell:
		return e.runShell(ctx, step, vars)
	case StepMessage:
		return e.runMessage(ctx, step, vars)
	case StepFile:
		return e.runFile(step, vars)
	case StepOutput:
		_, err := fmt.Fprintln(e.output(), Render(step.Content, vars))
		return err
	case StepWait:
		return e.runWait(ctx, step, vars)
	}
	return errors.New("unknown step kind %q", step.Kind)
}

func (e *Executor) runShell(ctx context.Context, step Step, vars map[string]string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", Render(step.Command, vars))
	cmd.Dir = e.Workdir
	out, err := cmd.CombinedOutput()
	if step.StoreAs != "" {
		vars[step.StoreAs] = strings.TrimRight(string(out), "\n")
	}
	if err != nil {
		return errors.Wrapf(err, "command failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (e *Executor) runMessage(ctx context.Context, step Step, vars map[string]string) error {
	content := Render(step.Content, vars)
	if !step.AwaitReply {
		return e.Manager.Send(e.AgentID, agent.UserMessage{Text: content})
	}
	reply, err := e.Manager.SendAndAwait(ctx, e.AgentID, content)
	if err != nil {
		return err
	}
	vars["agent_response"] = reply
	if step.StoreAs != "" {
		vars[step.StoreAs] = reply
	}
	return nil
}

func (e *Executor) runFile(step Step, vars map[string]string) error {
	abs, rel, err := tools.ResolveWithin(e.Workdir, Render(step.Path, vars))
	if err != nil {
		return err
	}
	switch step.Mode {
	case "read":
		data, err := os.ReadFile(abs)
		if err != nil {
			return errors.Wrapf(err, "cannot read %s", rel)
		}
		vars[step.StoreAs] = string(data)
	case "write":
		if err := os.WriteFile(abs, []byte(Render(step.Content, vars)), 0o644); err != nil {
			return errors.Wrapf(err, "cannot write %s", rel)
		}
	case "append":
		f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(err, "cannot open %s", rel)
		}
		defer f.Close()
		if _, err := f.WriteString(Render(step.Content, vars)); err != nil {
			return errors.Wrapf(err, "cannot append to %s", rel)
		}
	}
	return nil
}

// runWait reads one line of user input and sends it to the agent, storing
// the reply like an awaited message step.
func (e *Executor) runWait(ctx context.Context, step Step, vars map[string]string) error {
	fmt.Fprint(e.output(), "> ")
	line, err := bufio.NewReader(e.input()).ReadString('\n')
	if err != nil && line == "" {
		return errors.Wrapf(err, "no user input")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	reply, err := e.Manager.SendAndAwait(ctx, e.AgentID, line)
	if err != nil {
		return err
	}
	vars["agent_response"] = reply
	if step.StoreAs != "" {
		vars[step.StoreAs] = reply
	}
	return nil
}
