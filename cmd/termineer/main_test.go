package main

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageErrorsExitTwo(t *testing.T) {
	for _, args := range [][]string{
		{"--no-such-flag"},
		{"one query", "and another"},
		{"list-kinds", "extra"},
		{"login", "extra"},
	} {
		usage := false
		root := newRootCommand(&options{}, &usage)
		root.SetArgs(args)
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)

		err := root.Execute()
		require.Error(t, err, "%v", args)
		assert.Equal(t, exitUsage, exitCode(err, usage), "%v", args)
	}
}

func TestExitCodeClassification(t *testing.T) {
	assert.Equal(t, exitUsage, exitCode(fmt.Errorf("unknown command %q for %q", "zap", "termineer"), false))
	assert.Equal(t, exitError, exitCode(fmt.Errorf("backend unreachable"), false))
	assert.Equal(t, exitUsage, exitCode(fmt.Errorf("anything"), true))
}
