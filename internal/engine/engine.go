package engine

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/session"
)

// Variant supplies the engine-specific half of an Engine: its parameters,
// its agents and how it talks to an LLM.
type Variant interface {
	Name() string
	Parameters() []Parameter
	// BeforeDefineAgents runs after parameters are validated and defaulted.
	BeforeDefineAgents(ctx context.Context, e *Engine) error
	DefineAgents(e *Engine) map[string]*EngineAgent
	InitialAgent() string
	// LLMCall streams one response. Implementations usually delegate to Engine.StreamResponse.
	LLMCall(ctx context.Context, e *Engine, a *EngineAgent, messages []session.Message, toolSchemas []ToolSchema) iter.Seq2[StreamChunk, error]
	DescribeTool(name string) string
	RestartAtUserMessage(ctx context.Context, e *Engine, messageKey string) (bool, error)
	CurrentPlan(e *Engine) any
	TokenCounts(e *Engine) map[string]int
	ProjectCompleted(e *Engine) bool
}

// BaseVariant provides defaults for the optional parts of Variant.
// Embed it and override what the engine needs.
type BaseVariant struct{}

func (BaseVariant) BeforeDefineAgents(context.Context, *Engine) error { return nil }
func (BaseVariant) DefineAgents(*Engine) map[string]*EngineAgent      { return map[string]*EngineAgent{} }
func (BaseVariant) InitialAgent() string                              { return AgentWorker }
func (BaseVariant) DescribeTool(name string) string                   { return name }
func (BaseVariant) CurrentPlan(*Engine) any                           { return nil }
func (BaseVariant) TokenCounts(*Engine) map[string]int                { return map[string]int{} }
func (BaseVariant) ProjectCompleted(*Engine) bool                     { return false }
func (BaseVariant) RestartAtUserMessage(context.Context, *Engine, string) (bool, error) {
	return false, ErrNotImplemented
}

// Engine drives one session. Reason and the tool methods are meant to be
// driven by a single goroutine; StopToolExecution may be called from any.
type Engine struct {
	store   session.Store
	sess    *session.Session
	variant Variant
	agents  map[string]*EngineAgent
	opts    Options
	log     zerolog.Logger
	hooks   Hooks

	newSession bool
	logsPath   string

	// ephemeral message keys allowed into the current cycle
	ephemeral map[string]struct{}

	// mu guards session mutation and persistence.
	mu sync.Mutex

	toolMu        sync.Mutex
	executingTool Tool
}

// New builds an engine around sess. A session without messages is treated
// as new and seeded by the initial agent. If preparing the engine fails,
// the session's parameters are left as they were and no logs directory is
// created.
func New(ctx context.Context, store session.Store, sess *session.Session, v Variant, opts Options) (e *Engine, err error) {
	opts = opts.withDefaults()

	decl := v.Parameters()
	if err := ValidateParams(decl, sess.EngineParams); err != nil {
		return nil, err
	}

	e = &Engine{
		store:      store,
		sess:       sess,
		variant:    v,
		opts:       opts,
		log:        opts.Logger.With().Str("engine", v.Name()).Str("session", sess.SessionKey).Logger(),
		hooks:      Hooks(opts.Hooks),
		newSession: len(sess.Messages) == 0,
		ephemeral:  map[string]struct{}{},
	}
	orig := sess.EngineParams
	defer func() {
		if err != nil {
			sess.EngineParams = orig
		}
	}()
	sess.EngineParams = orig.Clone()
	FillDefaults(decl, sess.EngineParams)

	if err := v.BeforeDefineAgents(ctx, e); err != nil {
		return nil, fmt.Errorf("engine %s: prepare agents: %w", v.Name(), err)
	}
	e.agents = v.DefineAgents(e)
	if len(e.agents) == 0 {
		return nil, &ConfigurationError{Reason: "engine defines no agents"}
	}

	if sess.WorkingDirectory != "" {
		e.logsPath = filepath.Join(sess.WorkingDirectory, "logs")
		if err := os.MkdirAll(e.logsPath, 0o755); err != nil {
			return nil, fmt.Errorf("create logs directory: %w", err)
		}
	}

	if e.newSession {
		initial, ok := e.agents[v.InitialAgent()]
		if !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("initial agent %q is not defined", v.InitialAgent())}
		}
		if sess.EngineState.Agent == "" {
			sess.EngineState = session.DefaultEngineState(initial.Type)
		}
		if err := initial.Behavior.SetInitialMessages(ctx, e, initial); err != nil {
			return nil, fmt.Errorf("engine %s: initial messages: %w", v.Name(), err)
		}
		e.log.Info().Str("agent", initial.Type).Msg("new session seeded")
	}
	return e, nil
}

// Name of the engine variant.
func (e *Engine) Name() string { return e.variant.Name() }

// Variant returns the engine-specific implementation.
func (e *Engine) Variant() Variant { return e.variant }

// Session exposes the live session. Callers must not mutate it while the
// engine is reasoning or a tool is executing.
func (e *Engine) Session() *session.Session { return e.sess }

// Logger is the engine's contextual logger.
func (e *Engine) Logger() zerolog.Logger { return e.log }

func (e *Engine) Tools() ToolRegistry { return e.opts.Tools }

func (e *Engine) Options() Options { return e.opts }

// NewSession reports whether this engine seeded the session.
func (e *Engine) NewSession() bool { return e.newSession }

func (e *Engine) WorkingDirectory() string { return e.sess.WorkingDirectory }

// WorkingDirectoryAbs returns the absolute working directory with symlinks
// resolved. It falls back to the absolute path when the directory cannot be
// resolved (for example because it does not exist yet), and to the stored
// value when even that fails.
func (e *Engine) WorkingDirectoryAbs() string {
	abs, err := filepath.Abs(e.sess.WorkingDirectory)
	if err != nil {
		return e.sess.WorkingDirectory
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}

// EngineParams returns the session's (validated, defaulted) parameters.
func (e *Engine) EngineParams() session.Params { return e.sess.EngineParams }

// State returns a copy of the current engine state.
func (e *Engine) State() session.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.EngineState.Clone()
}

// Agent looks up a defined agent.
func (e *Engine) Agent(name string) (*EngineAgent, error) {
	a, ok := e.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return a, nil
}

// Agents returns the defined agents keyed by type.
func (e *Engine) Agents() map[string]*EngineAgent { return e.agents }

func (e *Engine) CurrentPlan() any { return e.variant.CurrentPlan(e) }

func (e *Engine) TokenCounts() map[string]int { return e.variant.TokenCounts(e) }

func (e *Engine) ProjectCompleted() bool { return e.variant.ProjectCompleted(e) }

func (e *Engine) SimulatedUser() bool { return e.opts.SimulatedUser }

func (e *Engine) DescribeTool(name string) string { return e.variant.DescribeTool(name) }

// PrivacyMode is the session's configured privacy mode.
func (e *Engine) PrivacyMode() string { return PrivacyMode(e.sess.EngineParams) }

// RestartAtUserMessage truncates history at the given user message if the
// variant supports it.
func (e *Engine) RestartAtUserMessage(ctx context.Context, messageKey string) (bool, error) {
	return e.variant.RestartAtUserMessage(ctx, e, messageKey)
}

// SetEngineState replaces the state and persists the session.
func (e *Engine) SetEngineState(ctx context.Context, st session.EngineState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.EngineState = st
	return e.saveLocked(ctx)
}

// Save persists the session.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked(ctx)
}

func (e *Engine) saveLocked(ctx context.Context) error {
	if err := e.store.UpdateSession(ctx, e.sess); err != nil {
		return fmt.Errorf("persist session %s: %w", e.sess.SessionKey, err)
	}
	return nil
}
