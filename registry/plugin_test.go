package registry

import (
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

func TestLoadPlugin_MissingDependencyIsAtomic(t *testing.T) {
	reg := New()
	plugin := &Plugin{
		Id:           "bundle",
		Name:         "Bundle",
		Version:      "1.0.0",
		Dependencies: []string{"base"},
		Tools:        []*Tool{testTool("a", CategoryData), testTool("b", CategoryData)},
	}

	err := reg.LoadPlugin(plugin)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissingDependency))
	require.Contains(t, err.Error(), `"base"`)
	require.Equal(t, 0, reg.GetStats().TotalTools, "no partial registration")
}

func TestLoadPlugin_DuplicateToolRollsBack(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(testTool("taken", CategoryData)))

	plugin := &Plugin{
		Id:      "bundle",
		Name:    "Bundle",
		Version: "1.0.0",
		Tools:   []*Tool{testTool("fresh", CategoryData), testTool("taken", CategoryData)},
	}
	err := reg.LoadPlugin(plugin)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDuplicateTool))

	_, ok := reg.Get("fresh")
	require.False(t, ok, "tools from the failed load must be rolled back")
	_, ok = reg.Get("taken")
	require.True(t, ok, "pre-existing tool untouched")
	_, ok = reg.GetPlugin("bundle")
	require.False(t, ok)
}

func TestLoadPlugin_DuplicatePlugin(t *testing.T) {
	reg := New()
	plugin := &Plugin{Id: "p", Name: "P", Version: "1.0.0", Tools: []*Tool{testTool("x", CategoryData)}}
	require.NoError(t, reg.LoadPlugin(plugin))

	err := reg.LoadPlugin(&Plugin{Id: "p", Name: "P", Version: "2.0.0"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDuplicatePlugin))
}

func TestLoadPlugin_DependencyChain(t *testing.T) {
	reg := New()
	base := &Plugin{Id: "base", Name: "Base", Version: "1.0.0", Tools: []*Tool{testTool("core", CategoryDevelopment)}}
	require.NoError(t, reg.LoadPlugin(base))

	dependent := &Plugin{
		Id: "ext", Name: "Ext", Version: "1.0.0",
		Dependencies: []string{"base"},
		Tools:        []*Tool{testTool("extra", CategoryDevelopment)},
	}
	require.NoError(t, reg.LoadPlugin(dependent))
	require.Equal(t, 2, reg.GetStats().TotalTools)
	require.Equal(t, 2, reg.GetStats().Plugins)
}

func TestUnloadPlugin_RemovesOwnedTools(t *testing.T) {
	reg := New()
	plugin := &Plugin{
		Id: "p", Name: "P", Version: "1.0.0",
		Tools: []*Tool{testTool("a", CategoryData), testTool("b", CategoryProductivity)},
	}
	require.NoError(t, reg.LoadPlugin(plugin))
	require.NoError(t, reg.Register(testTool("standalone", CategoryData)))

	reg.UnloadPlugin("p")
	reg.UnloadPlugin("p") // no-op

	_, ok := reg.Get("a")
	require.False(t, ok)
	_, ok = reg.Get("b")
	require.False(t, ok)
	_, ok = reg.Get("standalone")
	require.True(t, ok)
	require.Equal(t, 0, reg.GetStats().Plugins)
}
