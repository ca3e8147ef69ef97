package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yml := "db_path: " + filepath.Join(dir, "poswatch.db") + "\n" +
		"wal_dir: " + filepath.Join(dir, "wal") + "\n" +
		"log:\n  level: error\n" +
		"profiles:\n  - alpha\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "metrics", "alpha", "2025-03-04")
	require.NoError(t, err)
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	assert.Equal(t, "none", metrics["start_source"])

	out, err = run(t, "--config", cfg, "purge", "2025-03-04")
	require.NoError(t, err)
	assert.Contains(t, out, `"changes_deleted": 0`)

	out, err = run(t, "--config", cfg, "lifecycle", "alpha", "--symbol", "sbin")
	require.NoError(t, err)
	assert.Contains(t, out, `"symbol": "SBIN"`)

	_, err = run(t, "--config", cfg, "lifecycle", "alpha")
	require.NoError(t, err)
}

func TestCommandErrors(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "--config", cfg, "diff", "abc")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "diff", "7")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "metrics", "alpha", "yesterday")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "metrics", "alpha")
	assert.Error(t, err)
}
