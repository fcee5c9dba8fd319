package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twinmcp/gateway/registry"
)

func TestLoadBuiltinPluginRegistersEveryTool(t *testing.T) {
	reg := registry.New()
	require.NoError(t, loadBuiltinPlugin(reg))

	for _, id := range []string{"echo", "time.now", "hash.sha256"} {
		tool, ok := reg.Get(id)
		require.True(t, ok, "tool %q must be registered", id)
		require.NotEmpty(t, tool.InputSchema)
	}

	plugin, ok := reg.GetPlugin("builtin")
	require.True(t, ok)
	require.Len(t, plugin.Tools, 3)
}

func TestBuiltinHashTool(t *testing.T) {
	reg := registry.New()
	require.NoError(t, loadBuiltinPlugin(reg))

	tool, ok := reg.Get("hash.sha256")
	require.True(t, ok)

	result, err := tool.Executor.Execute(context.Background(), map[string]any{"input": "abc"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"digest": "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}, result)

	_, err = tool.Executor.Execute(context.Background(), map[string]any{"input": 7})
	require.Error(t, err)
}
