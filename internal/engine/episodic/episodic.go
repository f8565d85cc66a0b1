// Package episodic implements the plan-driven research engines: a
// coordinator agent picks the next episode of a plan file and a worker
// agent carries it out with the episode's tools.
package episodic

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/plan"
	"github.com/DrShushen/climb/internal/prompts"
	"github.com/DrShushen/climb/internal/session"
)

// Engine names.
const (
	OpenAIV1      = "openai_v1"
	AzureOpenAIV1 = "azure_openai_v1"
	AnthropicV1   = "anthropic_v1"
)

// Deps are the process-level inputs every episodic engine needs.
type Deps struct {
	PlansDir        string
	AzureConfigPath string
	Logger          zerolog.Logger
	// Prompts overrides the agent prompt registry; nil uses the default one.
	Prompts *prompts.PromptRegistry
	// NewClient builds the provider client; nil uses the providers package.
	NewClient func(provider string, creds engine.Credentials) (engine.LLMClient, error)
}

// Variant is an episodic engine bound to one provider.
type Variant struct {
	engine.BaseVariant

	name     string
	provider string
	client   engine.LLMClient
	deps     Deps
	log      zerolog.Logger

	plan        *plan.File
	promptTexts agentPrompts

	mu     sync.Mutex
	tokens map[string]int
}

// NewVariant creates an episodic engine talking through client.
func NewVariant(name, provider string, client engine.LLMClient, deps Deps) *Variant {
	return &Variant{
		name:     name,
		provider: provider,
		client:   client,
		deps:     deps,
		log:      deps.Logger.With().Str("engine", name).Logger(),
		tokens:   map[string]int{},
	}
}

func (v *Variant) Name() string { return v.name }

func (v *Variant) Parameters() []engine.Parameter { return parameters(v.provider, v.deps) }

func (v *Variant) InitialAgent() string { return engine.AgentCoordinator }

// BeforeDefineAgents loads the session's plan file and the agent prompts.
// Azure engines also take model_id from the selected config item.
func (v *Variant) BeforeDefineAgents(_ context.Context, e *engine.Engine) error {
	params := e.EngineParams()
	if v.provider == engine.ProviderAzureOpenAI {
		item, err := azureItem(v.deps.AzureConfigPath, params)
		if err != nil {
			return &engine.ConfigurationError{Param: ParamConfigItemName, Reason: "resolve Azure config item", Err: err}
		}
		params[ParamModelID] = item.ModelID
	}

	name, _ := params[ParamPlanFile].(string)
	f, err := loadPlan(v.deps.PlansDir, name)
	if err != nil {
		return &engine.ConfigurationError{Param: ParamPlanFile, Reason: "load plan file", Err: err}
	}
	if len(f.Episodes) == 0 {
		return &engine.ConfigurationError{Param: ParamPlanFile, Reason: fmt.Sprintf("plan file %q has no episodes", name)}
	}
	ap, err := loadAgentPrompts(v.registry())
	if err != nil {
		return fmt.Errorf("load agent prompts: %w", err)
	}
	v.plan = f
	v.promptTexts = ap
	return nil
}

func (v *Variant) DefineAgents(*engine.Engine) map[string]*engine.EngineAgent {
	return map[string]*engine.EngineAgent{
		engine.AgentCoordinator: newCoordinator(v),
		engine.AgentWorker:      newWorker(v),
	}
}

// LLMCall streams one response and tallies reported token usage per agent.
func (v *Variant) LLMCall(ctx context.Context, e *engine.Engine, a *engine.EngineAgent, msgs []session.Message, schemas []engine.ToolSchema) iter.Seq2[engine.StreamChunk, error] {
	params := e.EngineParams()
	model := modelID(params)
	opts := engine.ChatOptions{Temperature: float32(temperature(params))}
	chat, err := engine.ChatHistory("", msgs)
	if err != nil {
		return func(yield func(engine.StreamChunk, error) bool) {
			yield(engine.StreamChunk{}, fmt.Errorf("build chat history: %w", err))
		}
	}
	open := func(ctx context.Context) (<-chan engine.StreamEvent, <-chan error) {
		return v.client.Stream(ctx, model, chat, schemas, opts)
	}
	return func(yield func(engine.StreamChunk, error) bool) {
		var reply strings.Builder
		for chunk, err := range e.StreamResponse(ctx, a, open) {
			reply.WriteString(chunk.Text)
			if chunk.Sentinel == engine.ChunkEndOfStream {
				used := engine.EstimateChatTokens(chat) + engine.EstimateTokens(reply.String())
				if chunk.Usage != nil {
					used = chunk.Usage.Total
				}
				v.addTokens(a.Type, used)
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// addTokens tallies usage per agent. Providers that report no usage are
// counted by estimate.
func (v *Variant) addTokens(agent string, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[agent] += n
}

var toolDescriptions = map[string]string{
	"list_files":             "Listing files",
	"read_file_head":         "Reading the start of a file",
	"descriptive_statistics": "Computing descriptive statistics",
	engine.ExecuteCodeTool:   "Running generated code",
}

func (v *Variant) DescribeTool(name string) string {
	if d, ok := toolDescriptions[name]; ok {
		return d
	}
	return name
}

// RestartAtUserMessage archives everything after the user message and
// rewinds the engine state to match.
func (v *Variant) RestartAtUserMessage(ctx context.Context, e *engine.Engine, messageKey string) (bool, error) {
	return e.TruncateAtUserMessage(ctx, messageKey)
}

// Progress is the plan view returned by CurrentPlan.
type Progress struct {
	Plan           []string
	Enabled        []string
	Completed      []string
	CurrentEpisode string
}

func (v *Variant) CurrentPlan(e *engine.Engine) any {
	if v.plan == nil {
		return nil
	}
	st := e.State()
	return Progress{
		Plan:           slices.Clone(v.plan.Plan),
		Enabled:        enabledEpisodes(e.EngineParams(), v.plan),
		Completed:      st.CompletedEpisodes,
		CurrentEpisode: st.EpisodeID,
	}
}

func (v *Variant) TokenCounts(*engine.Engine) map[string]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int, len(v.tokens))
	for k, n := range v.tokens {
		out[k] = n
	}
	return out
}

// ProjectCompleted reports whether every enabled episode of the plan has
// been completed.
func (v *Variant) ProjectCompleted(e *engine.Engine) bool {
	if v.plan == nil {
		return false
	}
	done := e.State().CompletedEpisodes
	for _, id := range v.plan.Plan {
		if slices.Contains(enabledEpisodes(e.EngineParams(), v.plan), id) && !slices.Contains(done, id) {
			return false
		}
	}
	return true
}

// Plan returns the loaded plan file.
func (v *Variant) Plan() *plan.File { return v.plan }

func (v *Variant) guardrail(e *engine.Engine) string {
	if e.PrivacyMode() == engine.PrivacyDefault {
		return ""
	}
	return engine.GuardrailInstructions
}
