package episodic

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/plan"
	"github.com/DrShushen/climb/internal/prompts"
	"github.com/DrShushen/climb/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	model    string
	messages []engine.ChatMessage
	schemas  []engine.ToolSchema
	opts     engine.ChatOptions
}

// scriptedClient answers each Stream call with the next scripted response.
type scriptedClient struct {
	responses [][]engine.StreamEvent
	failures  map[int]error
	calls     []call
}

func (c *scriptedClient) Stream(ctx context.Context, model string, msgs []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	n := len(c.calls)
	evs := c.responses[n]
	fail := c.failures[n]
	c.calls = append(c.calls, call{model: model, messages: msgs, schemas: schemas, opts: opts})
	events := make(chan engine.StreamEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)
		for _, ev := range evs {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if fail != nil {
			errs <- fail
		}
	}()
	return events, errs
}

func textEvent(s string) engine.StreamEvent {
	return engine.StreamEvent{Type: engine.EventTextDelta, Text: s}
}

func callEvent(id, name string, args map[string]any) engine.StreamEvent {
	return engine.StreamEvent{Type: engine.EventToolCall, ToolCall: engine.ToolCall{ID: id, Name: name, Args: args}}
}

type stubTool struct{ name string }

func (t stubTool) Name() string        { return t.name }
func (t stubTool) Description() string { return "stub " + t.name }
func (t stubTool) SchemaJSON() string  { return `{"type":"object"}` }
func (t stubTool) StopExecution()      {}

func (t stubTool) Execute(context.Context, engine.ToolRun) iter.Seq[engine.ToolEvent] {
	return func(yield func(engine.ToolEvent) bool) {
		yield(engine.ToolEvent{Result: &engine.ToolResult{Content: "ok", Success: true}})
	}
}

func strPtr(s string) *string { return &s }

func writePlan(t *testing.T, dir string, f *plan.File) {
	t.Helper()
	require.NoError(t, plan.Save(filepath.Join(dir, "research.json"), f, []string{"list_files", "execute_code"}))
}

func samplePlan() *plan.File {
	return &plan.File{
		Plan: []string{"EDA", "MODEL"},
		Episodes: []plan.Episode{
			{EpisodeID: "EDA", EpisodeName: "Explore", EpisodeDetails: "Look at the data", Tools: nil},
			{
				EpisodeID:          "MODEL",
				SelectionCondition: strPtr("after EDA"),
				EpisodeName:        "Model",
				EpisodeDetails:     "Fit a model",
				WorkerGuidance:     strPtr("prefer linear models"),
				Tools:              []string{},
			},
		},
	}
}

type fixture struct {
	e      *engine.Engine
	client *scriptedClient
	v      *Variant
	dir    string
}

func newFixture(t *testing.T, params session.Params, responses ...[]engine.StreamEvent) fixture {
	t.Helper()
	plansDir := t.TempDir()
	writePlan(t, plansDir, samplePlan())

	client := &scriptedClient{responses: responses}
	deps := Deps{PlansDir: plansDir, Logger: zerolog.Nop()}
	v := NewVariant(OpenAIV1, engine.ProviderOpenAI, client, deps)

	if params == nil {
		params = session.Params{}
	}
	params[ParamPlanFile] = "research.json"
	sess := &session.Session{
		SessionKey:       "s1",
		EngineName:       OpenAIV1,
		EngineParams:     params,
		WorkingDirectory: t.TempDir(),
		StartedAt:        time.Now(),
	}
	opts := engine.Options{Tools: engine.ToolRegistry{"list_files": stubTool{name: "list_files"}}}
	e, err := engine.New(context.Background(), session.NewMemoryStore(), sess, v, opts)
	require.NoError(t, err)
	return fixture{e: e, client: client, v: v, dir: sess.WorkingDirectory}
}

func reason(t *testing.T, e *engine.Engine) {
	t.Helper()
	for _, err := range e.Reason(context.Background()) {
		require.NoError(t, err)
	}
}

func collectErr(seq iter.Seq2[engine.StreamChunk, error]) (int, error) {
	n := 0
	for _, err := range seq {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func lastMessage(t *testing.T, e *engine.Engine) session.Message {
	t.Helper()
	m, err := e.GetLastMessage()
	require.NoError(t, err)
	return m
}

func schemaNames(schemas []engine.ToolSchema) []string {
	out := make([]string, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s.Name)
	}
	return out
}

func TestNewSessionSeedsCoordinator(t *testing.T) {
	f := newFixture(t, nil)

	msgs := f.e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, session.RoleAssistant, msgs[0].Role)
	assert.Equal(t, engine.AgentCoordinator, msgs[0].Agent)
	assert.NotEmpty(t, msgs[0].Content)
	assert.Equal(t, engine.AgentCoordinator, f.e.State().Agent)
	require.NotNil(t, f.v.Plan())
	assert.Equal(t, []string{"EDA", "MODEL"}, f.v.Plan().Plan)
}

func TestNewFailsWithoutPlan(t *testing.T) {
	deps := Deps{PlansDir: t.TempDir(), Logger: zerolog.Nop()}
	v := NewVariant(OpenAIV1, engine.ProviderOpenAI, &scriptedClient{}, deps)
	sess := &session.Session{SessionKey: "s1", EngineParams: session.Params{ParamPlanFile: "missing.json"}}

	_, err := engine.New(context.Background(), session.NewMemoryStore(), sess, v, engine.Options{})

	var cfgErr *engine.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ParamPlanFile, cfgErr.Param)
}

func TestNewFailsWithoutAgentPrompts(t *testing.T) {
	plansDir := t.TempDir()
	writePlan(t, plansDir, samplePlan())
	partial := prompts.NewPromptRegistry()
	partial.Register(&prompts.Prompt{ID: prompts.CoordinatorSystem, Version: prompts.PromptV1, Content: "system"})
	partial.Register(&prompts.Prompt{ID: prompts.CoordinatorFirst, Version: prompts.PromptV1, Content: "hello"})
	partial.Register(&prompts.Prompt{ID: prompts.WorkerSystem, Version: prompts.PromptV1, Content: ""})

	tests := []struct {
		name     string
		registry *prompts.PromptRegistry
		wantErr  string
	}{
		{name: "empty registry", registry: prompts.NewPromptRegistry(), wantErr: prompts.CoordinatorSystem},
		{name: "empty prompt", registry: partial, wantErr: prompts.WorkerSystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{PlansDir: plansDir, Logger: zerolog.Nop(), Prompts: tt.registry}
			v := NewVariant(OpenAIV1, engine.ProviderOpenAI, &scriptedClient{}, deps)
			sess := &session.Session{SessionKey: "s1", EngineParams: session.Params{ParamPlanFile: "research.json"}}

			_, err := engine.New(context.Background(), session.NewMemoryStore(), sess, v, engine.Options{})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, sess.Messages)
		})
	}
}

func TestCoordinatorHandsEpisodeToWorker(t *testing.T) {
	f := newFixture(t, nil,
		[]engine.StreamEvent{
			textEvent("Let's explore the data first."),
			callEvent("c1", StartEpisodeTool, map[string]any{"episode_id": "EDA"}),
		},
		[]engine.StreamEvent{
			textEvent("The data has 3 columns."),
			callEvent("c2", EpisodeCompleteTool, map[string]any{"summary": "explored"}),
		},
	)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "data.csv"), []byte("a,b\n1,2\n"), 0o644))

	reason(t, f.e)

	first := f.client.calls[0]
	assert.Equal(t, "gpt-4o", first.model)
	assert.InDelta(t, 0.5, first.opts.Temperature, 1e-6)
	assert.Equal(t, []string{StartEpisodeTool}, schemaNames(first.schemas))
	assert.Contains(t, first.schemas[0].JSONSchema, `"EDA"`)
	require.NotEmpty(t, first.messages)
	assert.Equal(t, engine.RoleSystem, first.messages[0].Role)
	assert.Contains(t, first.messages[0].Content, "1. EDA: Explore")
	assert.Contains(t, first.messages[0].Content, "Selection condition: after EDA")

	st := f.e.State()
	assert.Equal(t, engine.AgentWorker, st.Agent)
	assert.True(t, st.AgentSwitched)
	assert.Equal(t, "EDA", st.EpisodeID)
	answer := lastMessage(t, f.e)
	assert.Equal(t, session.RoleTool, answer.Role)
	assert.Equal(t, "c1", answer.ToolCallKey)
	require.NotNil(t, answer.ToolCallSuccess)
	assert.True(t, *answer.ToolCallSuccess)
	assert.Empty(t, f.e.PendingToolCalls())

	reason(t, f.e)

	second := f.client.calls[1]
	assert.Equal(t, []string{"list_files", EpisodeCompleteTool}, schemaNames(second.schemas))
	assert.Contains(t, second.messages[0].Content, "Look at the data")
	var snapshot string
	for _, m := range second.messages {
		if m.Role == engine.RoleSystem && strings.HasPrefix(m.Content, "Files in the working directory") {
			snapshot = m.Content
		}
	}
	assert.Contains(t, snapshot, "data.csv")

	st = f.e.State()
	assert.Equal(t, engine.AgentCoordinator, st.Agent)
	assert.Empty(t, st.EpisodeID)
	assert.Equal(t, []string{"EDA"}, st.CompletedEpisodes)
	assert.False(t, f.v.ProjectCompleted(f.e))

	progress, ok := f.v.CurrentPlan(f.e).(Progress)
	require.True(t, ok)
	assert.Equal(t, []string{"EDA"}, progress.Completed)
}

func TestFailedWorkerCycleLeavesNoSnapshot(t *testing.T) {
	f := newFixture(t, session.Params{"privacy_mode": engine.PrivacyGuardrailWithApproval},
		[]engine.StreamEvent{callEvent("c1", StartEpisodeTool, map[string]any{"episode_id": "EDA"})},
		[]engine.StreamEvent{textEvent("Looking")},
		[]engine.StreamEvent{textEvent("Done looking.")},
	)
	f.client.failures = map[int]error{1: errors.New("connection reset")}
	ctx := context.Background()

	require.NoError(t, f.e.ApproveLastMessage(ctx))
	reason(t, f.e)
	require.Equal(t, engine.AgentWorker, f.e.State().Agent)
	require.NoError(t, f.e.ApproveLastMessage(ctx))
	before := len(f.e.Messages())

	var streamErr *engine.StreamError
	_, err := collectErr(f.e.Reason(ctx))
	require.ErrorAs(t, err, &streamErr)

	msgs := f.e.Messages()
	assert.Len(t, msgs, before)
	for _, m := range msgs {
		assert.NotEqual(t, session.VisibilityLLMOnlyEphemeral, m.Visibility)
	}
	assert.False(t, f.e.NeedsApproval())

	reason(t, f.e)
	assert.Len(t, f.client.calls, 3)
}

func TestCoordinatorRejectsUnknownEpisode(t *testing.T) {
	f := newFixture(t, nil, []engine.StreamEvent{
		callEvent("c1", StartEpisodeTool, map[string]any{"episode_id": "NOPE"}),
	})

	reason(t, f.e)

	st := f.e.State()
	assert.Equal(t, engine.AgentCoordinator, st.Agent)
	assert.Equal(t, session.ResponseToolCall, st.ResponseKind)
	answer := lastMessage(t, f.e)
	assert.Equal(t, session.RoleTool, answer.Role)
	require.NotNil(t, answer.ToolCallSuccess)
	assert.False(t, *answer.ToolCallSuccess)
	assert.Contains(t, answer.Content, "EDA, MODEL")
}

func TestDisabledEpisodesAreHidden(t *testing.T) {
	rows := []map[string]any{
		{"episode_id": "EDA", "episode_name": "Explore", "enabled": false},
		{"episode_id": "MODEL", "episode_name": "Model", "enabled": true},
	}
	f := newFixture(t, session.Params{ParamPossibleEpisodes: rows}, []engine.StreamEvent{
		callEvent("c1", StartEpisodeTool, map[string]any{"episode_id": "EDA"}),
	})

	reason(t, f.e)

	system := f.client.calls[0].messages[0].Content
	assert.NotContains(t, system, "EDA: Explore")
	assert.Contains(t, system, "1. MODEL: Model")
	assert.Equal(t, engine.AgentCoordinator, f.e.State().Agent)
}

func TestWorkerWithoutToolsOnlyCompletes(t *testing.T) {
	f := newFixture(t, session.Params{ParamShowWorkingDirectory: false},
		[]engine.StreamEvent{callEvent("c1", StartEpisodeTool, map[string]any{"episode_id": "MODEL"})},
		[]engine.StreamEvent{textEvent("Fitting.")},
	)

	reason(t, f.e)
	reason(t, f.e)

	second := f.client.calls[1]
	assert.Equal(t, []string{EpisodeCompleteTool}, schemaNames(second.schemas))
	assert.Contains(t, second.messages[0].Content, "prefer linear models")
	for _, m := range second.messages {
		assert.False(t, strings.HasPrefix(m.Content, "Files in the working directory"))
	}
	st := f.e.State()
	assert.Equal(t, engine.AgentWorker, st.Agent)
	assert.Equal(t, session.ResponseText, st.ResponseKind)
}

func TestWorkerLeavesRealToolCallsPending(t *testing.T) {
	f := newFixture(t, nil,
		[]engine.StreamEvent{callEvent("c1", StartEpisodeTool, map[string]any{"episode_id": "EDA"})},
		[]engine.StreamEvent{callEvent("c2", "list_files", map[string]any{})},
	)

	reason(t, f.e)
	reason(t, f.e)

	pending := f.e.PendingToolCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, "list_files", pending[0].Name)
	assert.Equal(t, session.ResponseToolCall, f.e.State().ResponseKind)
}

func TestTokenCountsPerAgent(t *testing.T) {
	f := newFixture(t, nil, []engine.StreamEvent{
		textEvent("Hello"),
		{Type: engine.EventUsage, Usage: engine.Usage{Prompt: 10, Completion: 5, Total: 15}},
	})

	reason(t, f.e)

	assert.Equal(t, map[string]int{engine.AgentCoordinator: 15}, f.v.TokenCounts(f.e))
}

func TestParametersAzureOrder(t *testing.T) {
	decl := parameters(engine.ProviderAzureOpenAI, Deps{PlansDir: t.TempDir()})
	require.GreaterOrEqual(t, len(decl), 2)
	assert.Equal(t, ParamConfigItemName, decl[0].Name)
	assert.Equal(t, ParamModelID, decl[1].Name)
	assert.True(t, decl[1].Disabled)
}

func TestResolvePossibleEpisodesFromPlan(t *testing.T) {
	plansDir := t.TempDir()
	writePlan(t, plansDir, samplePlan())

	resolved, err := engine.ResolveParameters(parameters(engine.ProviderOpenAI, Deps{PlansDir: plansDir}), session.Params{})
	require.NoError(t, err)
	values := engine.ResolvedValues(resolved)

	assert.Equal(t, "research.json", values[ParamPlanFile])
	rows, ok := engine.AsRecords(values[ParamPossibleEpisodes])
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "EDA", rows[0]["episode_id"])
	assert.Equal(t, true, rows[0]["enabled"])
}

func TestValidateNewSession(t *testing.T) {
	plansDir := t.TempDir()
	writePlan(t, plansDir, samplePlan())
	deps := Deps{PlansDir: plansDir}

	tests := []struct {
		name    string
		params  session.Params
		wantErr string
	}{
		{"valid", session.Params{ParamPlanFile: "research.json", ParamModelID: "gpt-4o", ParamTemperature: 0.5}, ""},
		{"missing plan", session.Params{ParamPlanFile: "nope.json"}, "failed to load plan file"},
		{"gpt-5 temperature", session.Params{ParamPlanFile: "research.json", ParamModelID: "gpt-5", ParamTemperature: 0.5}, "GPT-5"},
		{"nothing enabled", session.Params{
			ParamPlanFile:         "research.json",
			ParamPossibleEpisodes: []map[string]any{{"episode_id": "EDA", "enabled": false}},
		}, "no episodes enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewSession(engine.ProviderOpenAI, tt.params, deps)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegisterRequiresAPIKey(t *testing.T) {
	r := engine.NewRegistry()
	Register(r, Deps{NewClient: func(string, engine.Credentials) (engine.LLMClient, error) {
		return &scriptedClient{}, nil
	}})

	assert.Equal(t, []string{AnthropicV1, AzureOpenAIV1, OpenAIV1}, r.Available())
	d, err := r.Lookup(AzureOpenAIV1)
	require.NoError(t, err)
	assert.True(t, d.IsAzure())

	_, err = r.Create(context.Background(), OpenAIV1, engine.Credentials{})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	v, err := r.Create(context.Background(), AnthropicV1, engine.Credentials{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, AnthropicV1, v.Name())
}

func TestTokenCountsEstimatedWithoutUsage(t *testing.T) {
	f := newFixture(t, nil, []engine.StreamEvent{textEvent("Hello there, which dataset should we use?")})

	reason(t, f.e)

	assert.Positive(t, f.v.TokenCounts(f.e)[engine.AgentCoordinator])
}
