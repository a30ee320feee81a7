package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "run", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "simulator dev")
}

func TestRunCommandUnknownTest(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "tests.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte("tests: []\n"), 0o644))
	t.Setenv("CATALOG_PATH", catalogPath)
	t.Setenv("DATABASE_URL", ":memory:")

	root := buildRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--test", "missing", "--mock"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test not found")
}
