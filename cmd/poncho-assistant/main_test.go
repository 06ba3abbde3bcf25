package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-assistants/pkg/assistant"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"list", "run", "clear", "chat", "serve", "migrate", "assistant", "credential"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

// writeTestConfig пишет config.yaml с sqlite базой во временном каталоге.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  driver: sqlite3
  dsn: %s
  auto_migrate: true
cache:
  dir: %s
app:
  logs_dir: %s
`, filepath.Join(dir, "db.sqlite"), filepath.Join(dir, "cache"), filepath.Join(dir, "logs"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStorageCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied.")

	out, err = execute(t, "-c", cfg, "credential", "add", "--id", "cred-1", "--api-key", "sk-abcdefgh123")
	require.NoError(t, err)
	assert.Equal(t, "cred-1", strings.TrimSpace(out))

	out, err = execute(t, "-c", cfg, "assistant", "add",
		"--id", "a1", "--credential", "cred-1", "--remote-id", "asst_1",
		"--name", "Analyst", "--instructions", "Helps with\nsales", "--tools", "calculator,datetime")
	require.NoError(t, err)
	assert.Equal(t, "a1", strings.TrimSpace(out))

	out, err = execute(t, "-c", cfg, "list", "--json")
	require.NoError(t, err)
	var options []assistant.AssistantOption
	require.NoError(t, json.Unmarshal([]byte(out), &options))
	assert.Equal(t, []assistant.AssistantOption{
		{Label: "Analyst", Name: "a1", Description: "Helps with\nsales"},
	}, options)

	out, err = execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Analyst")
	assert.Contains(t, out, "Helps with sales")
}

func TestAssistantAdd_UnknownCredential(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "-c", cfg, "assistant", "add", "--credential", "nope", "--remote-id", "asst_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential 'nope'")
}

func TestAssistantAdd_RequiredFlags(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "-c", cfg, "assistant", "add", "--credential", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote-id")
}

func TestCredentialAdd_BlankKey(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "-c", cfg, "credential", "add", "--api-key", "   ")
	require.Error(t, err)
}

func TestList_Empty(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No assistants stored")
}

func TestClear_RequiresTarget(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "-c", cfg, "clear", "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--session-id or --chat-id")
}

func TestRun_UnknownAssistant(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "-c", cfg, "run", "missing", "hello")
	require.ErrorIs(t, err, assistant.ErrAssistantNotFound)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-abcde...", maskKey("sk-abcdefgh123"))
	assert.Equal(t, "***", maskKey("short"))
}
