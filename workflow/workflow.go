// Package workflow loads and runs declarative step scripts targeting one
// agent. Workflows are YAML files under .termineer/workflows.
package workflow

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/semtexzv/termineer-sub001/errors"
)

// Step kinds.
const (
	StepShell   = "shell"
	StepMessage = "message"
	StepFile    = "file"
	StepOutput  = "output"
	StepWait    = "wait"
)

// Parameter declares one workflow input.
type Parameter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Default     string `yaml:"default,omitempty"`
}

// Step is one workflow action. Which fields apply depends on Kind.
type Step struct {
	Name string `yaml:"name,omitempty"`
	Kind string `yaml:"kind"`

	// Shell.
	Command string `yaml:"command,omitempty"`

	// Message and Output.
	Content string `yaml:"content,omitempty"`
	// AwaitReply blocks a message step until the agent's turn ends and
	// stores the reply under agent_response.
	AwaitReply bool `yaml:"await_reply,omitempty"`

	// File.
	Path string `yaml:"path,omitempty"`
	// Mode is read, write or append.
	Mode string `yaml:"mode,omitempty"`

	// StoreAs names the variable receiving this step's output.
	StoreAs string `yaml:"store_as,omitempty"`

	// FailOnError aborts the workflow on step failure. Defaults to true.
	FailOnError *bool `yaml:"fail_on_error,omitempty"`
}

func (s Step) failFast() bool {
	return s.FailOnError == nil || *s.FailOnError
}

// Workflow is one declarative script.
type Workflow struct {
	Name          string      `yaml:"name"`
	Description   string      `yaml:"description,omitempty"`
	Parameters    []Parameter `yaml:"parameters,omitempty"`
	QueryTemplate string      `yaml:"query_template,omitempty"`
	Steps         []Step      `yaml:"steps"`
}

// Load parses and validates one workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read workflow %s", path)
	}
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse workflow %s", path)
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := wf.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid workflow %s", path)
	}
	return &wf, nil
}

// LoadDir loads every *.yaml workflow in dir, keyed by name. A missing
// directory yields an empty map.
func LoadDir(dir string) (map[string]*Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Workflow{}, nil
		}
		return nil, errors.Wrapf(err, "cannot list workflows in %s", dir)
	}
	out := make(map[string]*Workflow)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		wf, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out[wf.Name] = wf
	}
	return out, nil
}

func (w *Workflow) validate() error {
	if len(w.Steps) == 0 {
		return errors.New("workflow has no steps")
	}
	for i, s := range w.Steps {
		switch s.Kind {
		case StepShell:
			if s.Command == "" {
				return errors.New("step %d: shell step requires a command", i+1)
			}
		case StepMessage:
			if s.Content == "" {
				return errors.New("step %d: message step requires content", i+1)
			}
		case StepFile:
			if s.Path == "" {
				return errors.New("step %d: file step requires a path", i+1)
			}
			switch s.Mode {
			case "read", "write", "append":
			default:
				return errors.New("step %d: file mode must be read, write or append", i+1)
			}
			if s.Mode == "read" && s.StoreAs == "" {
				return errors.New("step %d: file read requires store_as", i+1)
			}
		case StepOutput:
			if s.Content == "" {
				return errors.New("step %d: output step requires content", i+1)
			}
		case StepWait:
		default:
			return errors.New("step %d: unknown step kind %q", i+1, s.Kind)
		}
	}
	return nil
}

// BindParameters resolves declared parameters against provided values,
// applying defaults and rejecting missing required parameters. The result
// is keyed "parameters.<name>".
func (w *Workflow) BindParameters(values map[string]string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, p := range w.Parameters {
		v, ok := values[p.Name]
		if !ok {
			if p.Required && p.Default == "" {
				return nil, errors.New("missing required parameter %q", p.Name)
			}
			v = p.Default
		}
		vars["parameters."+p.Name] = v
	}
	for name, v := range values {
		if _, declared := vars["parameters."+name]; !declared {
			vars["parameters."+name] = v
		}
	}
	return vars, nil
}

// Render substitutes ${var} references from vars. Unknown variables render
// empty.
func Render(template string, vars map[string]string) string {
	return os.Expand(template, func(key string) string {
		return vars[key]
	})
}
