package engine

import (
	"context"
	"fmt"
	"iter"

	"github.com/DrShushen/climb/internal/session"
)

// Reason runs one reasoning cycle for the current agent: gather, call the
// LLM, stream and persist its output, then dispatch to the next state.
//
// Chunks from the variant's LLM call are passed through unchanged. If the
// stream fails, or the caller stops iterating, dispatch does not run, the
// engine state is left as it was and any llm_only_ephemeral messages added
// while gathering are removed again.
func (e *Engine) Reason(ctx context.Context) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		if e.NeedsApproval() {
			yield(StreamChunk{}, ErrApprovalRequired)
			return
		}
		clear(e.ephemeral)

		start := len(e.Messages())
		dispatched := false
		defer func() {
			if dispatched {
				return
			}
			if err := e.dropEphemeralSince(context.WithoutCancel(ctx), start); err != nil {
				e.log.Warn().Err(err).Msg("drop ephemeral messages of failed cycle")
			}
		}()

		prev := e.State()
		agent, err := e.Agent(prev.Agent)
		if err != nil {
			yield(StreamChunk{}, err)
			return
		}
		e.hooks.OnCycleStart(ctx, e.sess, agent.Type)

		msgs, schemas, err := agent.Behavior.GatherMessages(ctx, e, agent)
		if err != nil {
			yield(StreamChunk{}, fmt.Errorf("gather messages for %s: %w", agent.Type, err))
			return
		}
		msgs = e.FilterForLLM(msgs)

		if err := e.logCycle(agent, msgs, schemas); err != nil {
			e.log.Warn().Err(err).Msg("write cycle log")
		}
		e.hooks.OnBeforeLLM(ctx, e.sess, msgs, schemas)

		for chunk, err := range e.variant.LLMCall(ctx, e, agent, msgs, schemas) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}

		next, err := agent.Behavior.Dispatch(ctx, e, agent)
		if err != nil {
			yield(StreamChunk{}, fmt.Errorf("dispatch %s: %w", agent.Type, err))
			return
		}
		if _, ok := e.agents[next.Agent]; !ok {
			yield(StreamChunk{}, fmt.Errorf("dispatch %s: %w: %q", agent.Type, ErrUnknownAgent, next.Agent))
			return
		}
		next.AgentSwitched = next.Agent != prev.Agent
		if err := e.SetEngineState(ctx, next); err != nil {
			yield(StreamChunk{}, err)
			return
		}
		dispatched = true
		e.hooks.OnDispatch(ctx, e.sess, prev, next)
	}
}

// Switch returns the state for handing control to another agent.
func Switch(st session.EngineState, to string) session.EngineState {
	next := st.Clone()
	next.AgentSwitched = next.Agent != to
	next.Agent = to
	return next
}
