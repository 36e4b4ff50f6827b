package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/errors"
)

// runRead reads a file inside the working directory. The first argument is
// the path; an optional second argument selects a line range as start:end
// (1-based, end inclusive, either side may be omitted).
func (e *Executor) runRead(ctx context.Context, inv Invocation) (Result, error) {
	fields := strings.Fields(inv.Args)
	if len(fields) == 0 {
		return Result{}, &InvocationError{Message: "read requires a path"}
	}
	abs, rel, err := ResolveWithin(e.cfg.Workdir, fields[0])
	if err != nil {
		return Result{}, err
	}
	if err := e.cfg.Policy.CheckRead(rel); err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Result{}, errors.Wrapf(err, "cannot read %s", rel)
	}
	text := string(data)

	if len(fields) > 1 {
		text, err = sliceLines(text, fields[1])
		if err != nil {
			return Result{}, err
		}
	}
	if !inv.Silent {
		buffer.Toolf(ctx, "read", "read %s (%d bytes)", rel, len(text))
	}
	return Result{Text: text}, nil
}

// sliceLines applies a start:end range to text. Lines are 1-based and end
// is inclusive.
func sliceLines(text, spec string) (string, error) {
	start, end := 1, -1
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", &InvocationError{Message: "line range must be start:end"}
	}
	var err error
	if parts[0] != "" {
		if start, err = strconv.Atoi(parts[0]); err != nil || start < 1 {
			return "", &InvocationError{Message: "bad range start " + parts[0]}
		}
	}
	if parts[1] != "" {
		if end, err = strconv.Atoi(parts[1]); err != nil || end < start {
			return "", &InvocationError{Message: "bad range end " + parts[1]}
		}
	}
	lines := strings.Split(text, "\n")
	if start > len(lines) {
		return "", nil
	}
	if end < 0 || end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// runWrite writes the invocation body to the path in the arguments,
// creating parent directories as needed.
func (e *Executor) runWrite(ctx context.Context, inv Invocation) (Result, error) {
	path := strings.TrimSpace(inv.Args)
	if path == "" {
		return Result{}, &InvocationError{Message: "write requires a path"}
	}
	abs, rel, err := ResolveWithin(e.cfg.Workdir, path)
	if err != nil {
		return Result{}, err
	}
	if err := e.cfg.Policy.CheckWrite(rel); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Result{}, errors.Wrapf(err, "cannot create directories for %s", rel)
	}
	if err := writeAtomic(abs, []byte(inv.Body)); err != nil {
		return Result{}, errors.Wrapf(err, "cannot write %s", rel)
	}
	if !inv.Silent {
		buffer.Toolf(ctx, "write", "wrote %s (%d bytes)", rel, len(inv.Body))
	}
	return Result{Text: fmt.Sprintf("wrote %d bytes to %s", len(inv.Body), rel)}, nil
}

// runPatch applies search/replace blocks from the body to the file in the
// arguments. Every search text must appear exactly once.
func (e *Executor) runPatch(ctx context.Context, inv Invocation) (Result, error) {
	path := strings.TrimSpace(inv.Args)
	if path == "" {
		return Result{}, &InvocationError{Message: "patch requires a path"}
	}
	abs, rel, err := ResolveWithin(e.cfg.Workdir, path)
	if err != nil {
		return Result{}, err
	}
	if err := e.cfg.Policy.CheckWrite(rel); err != nil {
		return Result{}, err
	}

	edits, err := parseEdits(inv.Body)
	if err != nil {
		return Result{}, err
	}
	if len(edits) == 0 {
		return Result{}, &InvocationError{Message: "patch body contains no edit blocks"}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Result{}, errors.Wrapf(err, "cannot read %s", rel)
	}
	text := string(data)
	for i, edit := range edits {
		switch strings.Count(text, edit.search) {
		case 0:
			return Result{}, &ExecError{Message: fmt.Sprintf("edit %d: search text not found in %s", i+1, rel)}
		case 1:
		default:
			return Result{}, &ExecError{Message: fmt.Sprintf("edit %d: search text is ambiguous in %s", i+1, rel)}
		}
		text = strings.Replace(text, edit.search, edit.replace, 1)
	}

	if err := writeAtomic(abs, []byte(text)); err != nil {
		return Result{}, errors.Wrapf(err, "cannot write %s", rel)
	}
	if !inv.Silent {
		buffer.Toolf(ctx, "patch", "applied %d edits to %s", len(edits), rel)
	}
	return Result{Text: fmt.Sprintf("applied %d edits to %s", len(edits), rel)}, nil
}

type edit struct {
	search  string
	replace string
}

const (
	editSearchMarker  = "<<<<<<< SEARCH"
	editDivider       = "======="
	editReplaceMarker = ">>>>>>> REPLACE"
)

// parseEdits extracts SEARCH/REPLACE blocks from a patch body.
func parseEdits(body string) ([]edit, error) {
	var edits []edit
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) != editSearchMarker {
			i++
			continue
		}
		i++
		var search []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != editDivider {
			search = append(search, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, &InvocationError{Message: "edit block missing divider"}
		}
		i++
		var replace []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != editReplaceMarker {
			replace = append(replace, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, &InvocationError{Message: "edit block missing replace marker"}
		}
		i++
		edits = append(edits, edit{
			search:  strings.Join(search, "\n"),
			replace: strings.Join(replace, "\n"),
		})
	}
	return edits, nil
}

// writeAtomic writes data via a temp file and rename so readers never see
// a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
