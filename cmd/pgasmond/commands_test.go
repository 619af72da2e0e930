package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/gas-monitor/gasClient/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInitCommand(t *testing.T) {
	home := t.TempDir()

	out, err := execute(t, "init", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, config.Path(home))

	_, err = os.Stat(config.Path(home))
	require.NoError(t, err)

	_, err = execute(t, "init", "--home", home)
	require.Error(t, err)

	_, err = execute(t, "init", "--home", home, "--force")
	require.NoError(t, err)
}

func TestConfigShowCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PGASMON_QUERY_SERVER_PORT", "9191")

	out, err := execute(t, "config", "show", "--home", home)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9191, cfg.QueryServerPort)
	assert.Equal(t, home, cfg.NodeHome)
	assert.Equal(t, []string{"ethereum", "polygon", "arbitrum"}, cfg.OrderedChainIDs())
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pgasmond")
	assert.Contains(t, out, Version)
}

func TestStartRejectsBadMode(t *testing.T) {
	_, err := execute(t, "start", "--home", t.TempDir(), "--mode", "turbo")
	require.Error(t, err)
}
