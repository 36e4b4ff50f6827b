package tools

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/semtexzv/termineer-sub001/buffer"
)

// shellOutputLimit caps how much command output is returned to the model.
// The full stream still reaches the agent's buffer.
const shellOutputLimit = 48 * 1024

// runShell executes the invocation body with /bin/sh -c inside the working
// directory. Output streams line by line into the agent's buffer as it
// arrives; the model receives the head of the combined output plus the exit
// status.
func (e *Executor) runShell(ctx context.Context, inv Invocation) (Result, error) {
	command := strings.TrimSpace(inv.Body)
	if command == "" {
		command = strings.TrimSpace(inv.Args)
	}
	if command == "" {
		return Result{}, &InvocationError{Message: "shell requires a command"}
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = e.cfg.Workdir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &ExecError{Message: err.Error()}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return Result{}, &ExecError{Message: err.Error()}
	}

	var out strings.Builder
	truncated := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !inv.Silent {
			buffer.Toolf(ctx, "shell", "%s", line)
		}
		if out.Len() < shellOutputLimit {
			out.WriteString(line)
			out.WriteByte('\n')
		} else {
			truncated = true
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return Result{Text: "(interrupted)"}, nil
	}

	text := out.String()
	if truncated {
		text += "[output truncated]\n"
	}
	if waitErr != nil {
		// Nonzero exit is reported to the model, not surfaced as a
		// runtime error.
		exitCode := -1
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		text += fmt.Sprintf("(exit code %d)", exitCode)
	}
	return Result{Text: text}, nil
}
