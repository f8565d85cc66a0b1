package engine

import (
	"github.com/rs/zerolog"
)

// DefaultBranchLimit caps how many archived branches a restarted message keeps.
const DefaultBranchLimit = 2

// Options holds runtime configuration for an Engine.
type Options struct {
	// CondaPath is forwarded to code execution; empty means the system interpreter.
	CondaPath string
	// BranchLimit caps archived branches per message; zero means DefaultBranchLimit.
	BranchLimit int
	// Tools available to agents.
	Tools ToolRegistry
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
	Hooks  []Hook
	// Retry applies to opening provider streams; nil means DefaultRetryPolicy.
	Retry *RetryPolicy
	// SimulatedUser marks sessions driven by a scripted user.
	SimulatedUser bool
}

func (o Options) withDefaults() Options {
	if o.BranchLimit <= 0 {
		o.BranchLimit = DefaultBranchLimit
	}
	if o.Tools == nil {
		o.Tools = ToolRegistry{}
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Retry == nil {
		p := DefaultRetryPolicy()
		o.Retry = &p
	}
	return o
}
