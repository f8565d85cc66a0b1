package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/engine"
)

func TestListAllToolNames(t *testing.T) {
	assert.Equal(t, []string{"descriptive_statistics", "execute_code", "list_files", "read_file_head"}, ListAllToolNames())
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(Options{})
	_, ok := reg[engine.ExecuteCodeTool]
	assert.False(t, ok, "execute_code needs a runner")

	reg = NewRegistry(Options{Runner: noRunner{}})
	require.Len(t, reg, 4)
	for name, tool := range reg {
		assert.Equal(t, name, tool.Name())
		assert.NotEmpty(t, tool.Description())
		// Every schema must be usable for argument validation.
		assert.NoError(t, engine.ValidateToolArgs(tool, map[string]any{"code": "", "path": "", "data_file_path": ""}), name)
	}

	// Registries do not share tool instances.
	other := NewRegistry(Options{Runner: noRunner{}})
	assert.NotSame(t, reg["list_files"], other["list_files"])
}
