package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/semtexzv/termineer-sub001/config"
	"github.com/semtexzv/termineer-sub001/workflow"
)

func workflowCommand(opts *options) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "workflow [NAME] [--param K=V]... [-- EXTRA_QUERY]",
		Short: "Run a workflow from .termineer/workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			dir := filepath.Join(rt.workdir, config.Dir, "workflows")
			flows, err := workflow.LoadDir(dir)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if len(flows) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no workflows in %s\n", dir)
					return nil
				}
				names := make([]string, 0, len(flows))
				for name := range flows {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, flows[name].Description)
				}
				return nil
			}

			wf, ok := flows[args[0]]
			if !ok {
				return fmt.Errorf("workflow %q not found in %s", args[0], dir)
			}
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			extra := strings.Join(args[1:], " ")

			exec := &workflow.Executor{
				Manager: rt.manager,
				AgentID: rt.agentID,
				Workdir: rt.workdir,
				Output:  cmd.OutOrStdout(),
				Input:   cmd.InOrStdin(),
			}
			if err := exec.Run(ctx, wf, values, extra); err != nil {
				return err
			}
			rt.drainBuffer()
			rt.saveSession()
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "workflow parameter as K=V, repeatable")
	return cmd
}

func parseParams(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad --param %q, expected K=V", p)
		}
		out[k] = v
	}
	return out, nil
}
