package tools

import (
	"context"
	"errors"

	"github.com/DrShushen/climb/internal/sandbox"
)

// noRunner stands in for a real runner when only tool metadata is needed.
type noRunner struct{}

func (noRunner) Run(context.Context, sandbox.Command) (sandbox.Result, error) {
	return sandbox.Result{}, errors.New("no sandbox runner configured")
}
