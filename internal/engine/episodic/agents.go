package episodic

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/plan"
	"github.com/DrShushen/climb/internal/prompts"
	"github.com/DrShushen/climb/internal/session"
)

// Tools the agents handle themselves instead of running them.
const (
	StartEpisodeTool    = "start_episode"
	EpisodeCompleteTool = "episode_complete"
)

// agentPrompts are the prompt texts the two agents are built from.
type agentPrompts struct {
	coordinatorSystem string
	coordinatorFirst  string
	workerSystem      string
	workerFirst       string
}

func loadAgentPrompts(r *prompts.PromptRegistry) (agentPrompts, error) {
	var ap agentPrompts
	for _, p := range []struct {
		id  string
		dst *string
	}{
		{prompts.CoordinatorSystem, &ap.coordinatorSystem},
		{prompts.CoordinatorFirst, &ap.coordinatorFirst},
		{prompts.WorkerSystem, &ap.workerSystem},
		{prompts.WorkerFirst, &ap.workerFirst},
	} {
		content, err := r.Content(p.id)
		if err != nil {
			return agentPrompts{}, err
		}
		if content == "" {
			return agentPrompts{}, fmt.Errorf("prompt %q is empty", p.id)
		}
		*p.dst = content
	}
	return ap, nil
}

func (v *Variant) registry() *prompts.PromptRegistry {
	if v.deps.Prompts != nil {
		return v.deps.Prompts
	}
	return prompts.DefaultRegistry()
}

func newCoordinator(v *Variant) *engine.EngineAgent {
	return &engine.EngineAgent{
		Type:                  engine.AgentCoordinator,
		SystemMessageTemplate: v.promptTexts.coordinatorSystem,
		FirstMessageContent:   v.promptTexts.coordinatorFirst,
		FirstMessageRole:      session.RoleAssistant,
		Behavior:              coordinator{v: v},
	}
}

func newWorker(v *Variant) *engine.EngineAgent {
	return &engine.EngineAgent{
		Type:                  engine.AgentWorker,
		SystemMessageTemplate: v.promptTexts.workerSystem,
		FirstMessageContent:   v.promptTexts.workerFirst,
		FirstMessageRole:      session.RoleAssistant,
		Behavior:              worker{v: v},
	}
}

func systemMessage(content string) session.Message {
	return session.NewMessage(session.RoleSystem, session.VisibilityLLMOnly, content)
}

func withGuardrail(system, guardrail string) string {
	if guardrail == "" {
		return system
	}
	return system + "\n\n" + guardrail
}

func noneIfEmpty(items []string) string {
	if len(items) == 0 {
		return "None."
	}
	return strings.Join(items, ", ")
}

func toolSchema(name, description string, schema map[string]any) engine.ToolSchema {
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = []byte(`{"type":"object"}`)
	}
	return engine.ToolSchema{Name: name, Description: description, JSONSchema: string(raw)}
}

func startEpisodeSchema(ids []string) engine.ToolSchema {
	return toolSchema(StartEpisodeTool, "Hand control to the worker agent to carry out one episode of the plan.", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"episode_id": map[string]any{
				"type":        "string",
				"enum":        ids,
				"description": "ID of the episode to start.",
			},
		},
		"required": []string{"episode_id"},
	})
}

func episodeCompleteSchema() engine.ToolSchema {
	return toolSchema(EpisodeCompleteTool, "Mark the current episode as complete and return control to the coordinator.", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "One or two sentences on what the episode achieved.",
			},
		},
	})
}

// answerOthers rejects every pending call except keep.
func answerOthers(ctx context.Context, e *engine.Engine, pending []session.ToolCallRecord, keep, reason string) error {
	for _, c := range pending {
		if c.ID == keep {
			continue
		}
		if err := e.AnswerToolCall(ctx, c, "Not executed: "+reason, false); err != nil {
			return err
		}
	}
	return nil
}

func findCall(pending []session.ToolCallRecord, name string) (session.ToolCallRecord, bool) {
	i := slices.IndexFunc(pending, func(c session.ToolCallRecord) bool { return c.Name == name })
	if i < 0 {
		return session.ToolCallRecord{}, false
	}
	return pending[i], true
}

type coordinator struct{ v *Variant }

func (c coordinator) SetInitialMessages(ctx context.Context, e *engine.Engine, a *engine.EngineAgent) error {
	return a.SeedFirstMessage(ctx, e)
}

func (c coordinator) GatherMessages(_ context.Context, e *engine.Engine, _ *engine.EngineAgent) ([]session.Message, []engine.ToolSchema, error) {
	f := c.v.plan
	enabled := enabledEpisodes(e.EngineParams(), f)
	st := e.State()

	system, err := c.v.registry().Render(prompts.CoordinatorSystem, map[string]string{
		"plan":               formatPlan(f, enabled, st.CompletedEpisodes),
		"episodes":           formatEpisodes(f, enabled),
		"completed_episodes": noneIfEmpty(st.CompletedEpisodes),
	})
	if err != nil {
		return nil, nil, err
	}
	msgs := append([]session.Message{systemMessage(withGuardrail(system, c.v.guardrail(e)))}, e.Messages()...)
	return msgs, []engine.ToolSchema{startEpisodeSchema(enabled)}, nil
}

// Dispatch hands control to the worker when the coordinator started an
// episode. An unknown episode is reported back to the coordinator.
func (c coordinator) Dispatch(ctx context.Context, e *engine.Engine, _ *engine.EngineAgent) (session.EngineState, error) {
	st := e.State()
	st.AgentSwitched = false
	pending := e.PendingToolCalls()

	call, ok := findCall(pending, StartEpisodeTool)
	if !ok {
		st.ResponseKind = responseKind(pending)
		return st, nil
	}
	if err := answerOthers(ctx, e, pending, call.ID, "an episode was started in the same turn."); err != nil {
		return st, err
	}

	enabled := enabledEpisodes(e.EngineParams(), c.v.plan)
	id, _ := engine.ToolCallFromRecord(call).Args["episode_id"].(string)
	ep, found := c.v.plan.Episode(id)
	if !found || !slices.Contains(enabled, id) {
		msg := fmt.Sprintf("Episode %q is not available. Choose one of: %s.", id, strings.Join(enabled, ", "))
		if err := e.AnswerToolCall(ctx, call, msg, false); err != nil {
			return st, err
		}
		st.ResponseKind = session.ResponseToolCall
		return st, nil
	}

	msg := fmt.Sprintf("Episode %s (%s) started. The worker agent is now in control.", ep.EpisodeID, ep.EpisodeName)
	if err := e.AnswerToolCall(ctx, call, msg, true); err != nil {
		return st, err
	}
	next := engine.Switch(st, engine.AgentWorker)
	next.EpisodeID = ep.EpisodeID
	next.ResponseKind = session.ResponseToolCall
	return next, nil
}

type worker struct{ v *Variant }

func (w worker) SetInitialMessages(ctx context.Context, e *engine.Engine, a *engine.EngineAgent) error {
	return a.SeedFirstMessage(ctx, e)
}

// GatherMessages gives the worker the episode's tools and, when enabled, a
// fresh working directory listing that is sent for this call only.
func (w worker) GatherMessages(ctx context.Context, e *engine.Engine, a *engine.EngineAgent) ([]session.Message, []engine.ToolSchema, error) {
	st := e.State()
	ep, ok := w.v.plan.Episode(st.EpisodeID)
	if !ok {
		return nil, nil, fmt.Errorf("worker has no episode to work on (episode %q)", st.EpisodeID)
	}
	names := allowedTools(ep, e.Tools())

	guidance := "None."
	if ep.WorkerGuidance != nil && *ep.WorkerGuidance != "" {
		guidance = *ep.WorkerGuidance
	}
	system, err := w.v.registry().Render(prompts.WorkerSystem, map[string]string{
		"episode_id":      ep.EpisodeID,
		"episode_name":    ep.EpisodeName,
		"episode_details": ep.EpisodeDetails,
		"worker_guidance": guidance,
		"tools":           noneIfEmpty(names),
	})
	if err != nil {
		return nil, nil, err
	}
	msgs := append([]session.Message{systemMessage(withGuardrail(system, w.v.guardrail(e)))}, e.Messages()...)

	if show, _ := e.EngineParams()[ParamShowWorkingDirectory].(bool); show {
		listing, err := e.DescribeWorkingDirectoryString()
		if err != nil {
			return nil, nil, err
		}
		if listing == "" {
			listing = "(empty)"
		}
		snapshot := session.NewMessage(session.RoleSystem, session.VisibilityLLMOnlyEphemeral, "Files in the working directory:\n"+listing)
		snapshot.Agent = a.Type
		if err := e.AppendMessage(ctx, snapshot); err != nil {
			return nil, nil, err
		}
		e.SendEphemeral(snapshot.Key)
		msgs = append(msgs, snapshot)
	}

	schemas := append(e.Tools().Schemas(names), episodeCompleteSchema())
	return msgs, schemas, nil
}

// Dispatch returns control to the coordinator once the worker completes
// its episode; other tool calls are left for the driver to execute.
func (w worker) Dispatch(ctx context.Context, e *engine.Engine, _ *engine.EngineAgent) (session.EngineState, error) {
	st := e.State()
	st.AgentSwitched = false
	pending := e.PendingToolCalls()

	call, ok := findCall(pending, EpisodeCompleteTool)
	if !ok {
		st.ResponseKind = responseKind(pending)
		return st, nil
	}
	if err := answerOthers(ctx, e, pending, call.ID, "the episode was completed in the same turn."); err != nil {
		return st, err
	}
	msg := fmt.Sprintf("Episode %s marked as complete. Control returns to the coordinator.", st.EpisodeID)
	if err := e.AnswerToolCall(ctx, call, msg, true); err != nil {
		return st, err
	}

	next := engine.Switch(st, engine.AgentCoordinator)
	if st.EpisodeID != "" && !slices.Contains(next.CompletedEpisodes, st.EpisodeID) {
		next.CompletedEpisodes = append(next.CompletedEpisodes, st.EpisodeID)
	}
	next.EpisodeID = ""
	next.ResponseKind = session.ResponseToolCall
	return next, nil
}

func responseKind(pending []session.ToolCallRecord) session.ResponseKind {
	if len(pending) > 0 {
		return session.ResponseToolCall
	}
	return session.ResponseText
}

// allowedTools resolves an episode's tool list against the registry.
func allowedTools(ep plan.Episode, reg engine.ToolRegistry) []string {
	if ep.AllTools() {
		return reg.Names()
	}
	out := []string{}
	for _, name := range ep.Tools {
		if _, ok := reg[name]; ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func formatPlan(f *plan.File, enabled, completed []string) string {
	var b strings.Builder
	n := 0
	for _, ep := range f.PlannedEpisodes() {
		if !slices.Contains(enabled, ep.EpisodeID) {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s: %s", n, ep.EpisodeID, ep.EpisodeName)
		if slices.Contains(completed, ep.EpisodeID) {
			b.WriteString(" (completed)")
		}
		b.WriteString("\n")
	}
	if n == 0 {
		return "No planned episodes."
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEpisodes(f *plan.File, enabled []string) string {
	var b strings.Builder
	for _, ep := range f.Episodes {
		if !slices.Contains(enabled, ep.EpisodeID) {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n  Details: %s\n", ep.EpisodeID, ep.EpisodeName, ep.EpisodeDetails)
		if ep.SelectionCondition != nil && *ep.SelectionCondition != "" {
			fmt.Fprintf(&b, "  Selection condition: %s\n", *ep.SelectionCondition)
		}
		if ep.CoordinatorGuidance != nil && *ep.CoordinatorGuidance != "" {
			fmt.Fprintf(&b, "  Coordinator guidance: %s\n", *ep.CoordinatorGuidance)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
