package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "veristat.yaml"), []byte(content), 0o644))
	return dir
}

func TestVersionCommand(t *testing.T) {
	require.NoError(t, versionCmd(nil))
}

func TestMigrateCommand(t *testing.T) {
	dir := writeConfig(t, "store:\n  driver: sqlite\n  path: \""+filepath.ToSlash(filepath.Join(t.TempDir(), "state.db"))+"\"\n")

	require.NoError(t, migrateCmd([]string{"-config", dir}))
}

func TestCompileCommand(t *testing.T) {
	plugins := t.TempDir()
	widgets := filepath.Join(plugins, "fairness", "widgets")
	require.NoError(t, os.MkdirAll(widgets, 0o755))
	source := "---\nname: Summary\n---\n<p>ok</p>\n"
	require.NoError(t, os.WriteFile(filepath.Join(widgets, "summary.mdx"), []byte(source), 0o644))

	dir := writeConfig(t, "plugins:\n  dir: \""+filepath.ToSlash(plugins)+"\"\n")

	require.NoError(t, compileCmd([]string{"-config", dir, "fairness", "summary"}))
}

func TestCompileCommandMissingWidget(t *testing.T) {
	dir := writeConfig(t, "plugins:\n  dir: \""+filepath.ToSlash(t.TempDir())+"\"\n")

	err := compileCmd([]string{"-config", dir, "fairness", "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCompileCommandArgCount(t *testing.T) {
	dir := writeConfig(t, "")

	err := compileCmd([]string{"-config", dir, "only-one-arg"})
	require.Error(t, err)
}
