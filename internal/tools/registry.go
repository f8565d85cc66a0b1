// Package tools assembles the concrete tools into an engine.ToolRegistry.
package tools

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/sandbox"
	"github.com/DrShushen/climb/internal/tools/analysis"
	"github.com/DrShushen/climb/internal/tools/execution"
	"github.com/DrShushen/climb/internal/tools/filesystem"
)

// Options configures registry construction.
type Options struct {
	// Runner executes generated code. Without one, execute_code is not registered.
	Runner    sandbox.Runner
	CondaPath string
	CondaEnv  string
	Timeout   time.Duration
	Logger    *zerolog.Logger
}

// NewRegistry creates a fresh set of tools. Each engine gets its own
// registry because tools carry per-run stop state.
func NewRegistry(opts Options) engine.ToolRegistry {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	all := []engine.Tool{
		filesystem.NewListFilesTool(),
		filesystem.NewReadFileHeadTool(),
		analysis.NewDescriptiveStatisticsTool(),
	}
	if opts.Runner != nil {
		all = append(all, execution.NewExecuteCodeTool(opts.Runner, execution.Options{
			CondaPath: opts.CondaPath,
			CondaEnv:  opts.CondaEnv,
			Timeout:   opts.Timeout,
			Logger:    log.With().Str("tool", engine.ExecuteCodeTool).Logger(),
		}))
	}
	reg := make(engine.ToolRegistry, len(all))
	for _, t := range all {
		reg[t.Name()] = t
	}
	return reg
}

// ListAllToolNames returns every tool name a registry can contain, sorted.
// Plan files filter their tool lists against it.
func ListAllToolNames() []string {
	return NewRegistry(Options{Runner: noRunner{}}).Names()
}
