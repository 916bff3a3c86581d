// Package agent implements the orchestration graph that answers one
// chat request: a forced knowledge-base search, tool execution,
// model reasoning, and a bounded loop between the two, streamed to the
// client as typed chunks.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/tools"
)

// forcedCallRef tags the synthesized knowledge-base request so the tool
// response can be correlated.
const forcedCallRef = "forced_kb_search"

// Sentinel errors checked by the HTTP layer with errors.Is.
var (
	// ErrModelFailure indicates the reasoning model call failed.
	ErrModelFailure = errors.New("model call failed")

	// ErrToolFailure indicates a tool broke its fold-errors-into-text
	// contract and returned a hard error.
	ErrToolFailure = errors.New("tool execution failed")

	// ErrRequestTimeout indicates the per-request deadline expired.
	ErrRequestTimeout = errors.New("request deadline exceeded")

	// ErrStreamClosed indicates the client connection broke mid-stream.
	ErrStreamClosed = errors.New("stream closed by client")
)

// Config assembles an Agent. All fields except Logger are required.
type Config struct {
	Genkit         *genkit.Genkit
	ModelName      string
	SystemPrompt   string
	Tools          []ai.Tool
	MaxToolRounds  int
	RequestTimeout time.Duration
	Logger         log.Logger
}

func (c Config) validate() error {
	if c.Genkit == nil {
		return fmt.Errorf("genkit instance is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("system prompt is required")
	}
	if len(c.Tools) == 0 {
		return fmt.Errorf("at least one tool is required")
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max tool rounds must be positive, got %d", c.MaxToolRounds)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	return nil
}

// Agent runs the orchestration graph. It is immutable after New and
// shared by all requests; per-request state lives on the stack of
// Execute and in the per-request Emitter.
type Agent struct {
	g              *genkit.Genkit
	modelName      string
	systemPrompt   string
	toolRefs       []ai.ToolRef
	maxToolRounds  int
	requestTimeout time.Duration
	logger         log.Logger
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
	}

	return &Agent{
		g:              cfg.Genkit,
		modelName:      cfg.ModelName,
		systemPrompt:   cfg.SystemPrompt,
		toolRefs:       toolRefs,
		maxToolRounds:  cfg.MaxToolRounds,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
	}, nil
}

// StreamResult is what a completed run produced.
type StreamResult struct {
	// Response is the assistant's final message text.
	Response string

	// ToolCalls is the completed tool-call ledger.
	ToolCalls []ToolCall

	// Sources aggregates source attributions from all tool calls.
	Sources []tools.Source
}

// Execute runs the graph for one request and streams chunks through
// emitter. It owns the stream lifecycle: exactly one done or error
// chunk is emitted before it returns. The returned error describes the
// failure for logging; the client already received it as the terminal
// error chunk.
func (a *Agent) Execute(ctx context.Context, history []*ai.Message, message string, emitter *Emitter) (*StreamResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	result, err := a.run(ctx, history, message, emitter)
	if err != nil {
		a.terminateWithError(emitter, err)
		return nil, err
	}

	if emitErr := emitter.Done(); emitErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamClosed, emitErr)
	}
	return result, nil
}

// run drives the state machine. Every state change goes through
// Transition; a transition error here is a bug, not a runtime condition.
func (a *Agent) run(ctx context.Context, history []*ai.Message, message string, emitter *Emitter) (*StreamResult, error) {
	msgs := make([]*ai.Message, 0, len(history)+2)
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(message)))

	state := StateForcedTool
	knowledgeUsed := false
	rounds := 0
	var pending []*ai.ToolRequest
	var finalText string
	var sources []tools.Source

	for state != StateTerminal {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}

		switch state {
		case StateForcedTool:
			// The knowledge-base call is synthesized here, before the
			// model ever runs. The graph has no path around it.
			forced := &ai.ToolRequest{
				Name:  tools.KnowledgeBaseName,
				Input: map[string]any{"query": message, "k": float64(tools.DefaultTopK)},
				Ref:   forcedCallRef,
			}
			msgs = append(msgs, &ai.Message{
				Role:    ai.RoleModel,
				Content: []*ai.Part{{Kind: ai.PartToolRequest, ToolRequest: forced}},
			})
			pending = []*ai.ToolRequest{forced}

			next, err := Transition(state, EventForcedCallQueued)
			if err != nil {
				return nil, err
			}
			state = next

		case StateToolExec:
			responses, outputs, err := a.runTools(ctx, pending, emitter)
			if err != nil {
				return nil, err
			}
			for i, req := range pending {
				if req.Name == tools.KnowledgeBaseName {
					knowledgeUsed = true
				}
				sources = append(sources, outputs[i].Sources...)
			}
			msgs = append(msgs, &ai.Message{Role: ai.RoleTool, Content: responses})
			pending = nil

			next, err := Transition(state, EventToolsCompleted)
			if err != nil {
				return nil, err
			}
			state = next

		case StateReasoning:
			rounds++
			if rounds > a.maxToolRounds {
				a.logger.Warn("tool round ceiling reached", "rounds", rounds-1)
				if err := emitter.Warning(fmt.Sprintf(
					"Warning: Reached the maximum of %d tool rounds. Answering with the information gathered so far.\n\n",
					a.maxToolRounds)); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
				}

				text, err := a.generateFinal(ctx, msgs, emitter)
				if err != nil {
					return nil, err
				}
				finalText = text

				next, err := Transition(state, EventRoundsExhausted)
				if err != nil {
					return nil, err
				}
				state = next
				continue
			}

			resp, err := a.generate(ctx, msgs, emitter)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, resp.Message)

			if requests := resp.ToolRequests(); len(requests) > 0 {
				pending = requests
				next, err := Transition(state, EventToolsRequested)
				if err != nil {
					return nil, err
				}
				state = next
				continue
			}

			finalText = resp.Text()
			next, err := Transition(state, EventAnswerProduced)
			if err != nil {
				return nil, err
			}
			state = next
		}
	}

	// Structurally impossible given StateForcedTool, kept as a tripwire.
	if !knowledgeUsed {
		if err := emitter.Warning("Warning: Knowledge base was not consulted.\n\n"); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
	}

	return &StreamResult{
		Response:  finalText,
		ToolCalls: emitter.Calls(),
		Sources:   sources,
	}, nil
}

// runTools executes the pending tool requests. Calls run concurrently,
// but chunks and results are merged back in request order so the stream
// stays deterministic.
func (a *Agent) runTools(ctx context.Context, requests []*ai.ToolRequest, emitter *Emitter) ([]*ai.Part, []tools.Output, error) {
	indices := make([]int, len(requests))
	for i, req := range requests {
		idx, err := emitter.ToolStart(req.Name, req.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
		indices[i] = idx
	}

	outputs := make([]tools.Output, len(requests))
	errs := make([]error, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req *ai.ToolRequest) {
			defer wg.Done()
			outputs[i], errs[i] = a.runTool(ctx, req)
		}(i, req)
	}
	wg.Wait()

	responses := make([]*ai.Part, len(requests))
	for i, req := range requests {
		if errs[i] != nil {
			return nil, nil, errs[i]
		}
		if err := emitter.ToolEnd(indices[i], outputs[i]); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
		responses[i] = ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: outputs[i],
		})
	}
	return responses, outputs, nil
}

// runTool dispatches one tool request. Adapters fold their own failures
// into result text; an error here means the contract was broken.
func (a *Agent) runTool(ctx context.Context, req *ai.ToolRequest) (tools.Output, error) {
	tool := genkit.LookupTool(a.g, req.Name)
	if tool == nil {
		return tools.Output{}, fmt.Errorf("%w: unknown tool %q", ErrToolFailure, req.Name)
	}

	start := time.Now()
	raw, err := tool.RunRaw(ctx, req.Input)
	if err != nil {
		if ctx.Err() != nil {
			return tools.Output{}, fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
		return tools.Output{}, fmt.Errorf("%w: %s: %v", ErrToolFailure, req.Name, err)
	}

	out := coerceOutput(raw)
	a.logger.Debug("tool executed",
		"tool", req.Name,
		"duration", time.Since(start),
		"output_length", len(out.Text),
	)
	return out, nil
}

// coerceOutput normalizes a raw tool result. Depending on the runner it
// may surface as the Output struct or as a JSON-decoded map.
func coerceOutput(raw any) tools.Output {
	switch v := raw.(type) {
	case tools.Output:
		return v
	case *tools.Output:
		if v != nil {
			return *v
		}
	case map[string]any:
		var out tools.Output
		out.Text, _ = v["text"].(string)
		if rawSources, ok := v["sources"].([]any); ok {
			for _, rs := range rawSources {
				m, ok := rs.(map[string]any)
				if !ok {
					continue
				}
				var s tools.Source
				s.Source, _ = m["source"].(string)
				s.URL, _ = m["url"].(string)
				s.Score, _ = m["score"].(float64)
				out.Sources = append(out.Sources, s)
			}
		}
		return out
	case string:
		return tools.Output{Text: v}
	}
	return tools.Output{Text: fmt.Sprintf("%v", raw)}
}

// generate calls the model with tools bound, streaming token deltas
// verbatim. Tool requests come back unexecuted so the graph keeps
// control of execution and ordering.
func (a *Agent) generate(ctx context.Context, msgs []*ai.Message, emitter *Emitter) (*ai.ModelResponse, error) {
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(a.systemPrompt),
		ai.WithMessages(msgs...),
		ai.WithTools(a.toolRefs...),
		ai.WithReturnToolRequests(true),
		ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			return emitter.Text(chunk.Text())
		}),
	)
	if err != nil {
		return nil, a.classifyModelError(ctx, err)
	}
	return resp, nil
}

// generateFinal produces the best-effort answer after the round ceiling,
// with no tools bound so the model cannot request another round.
func (a *Agent) generateFinal(ctx context.Context, msgs []*ai.Message, emitter *Emitter) (string, error) {
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(a.systemPrompt),
		ai.WithMessages(msgs...),
		ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			return emitter.Text(chunk.Text())
		}),
	)
	if err != nil {
		return "", a.classifyModelError(ctx, err)
	}
	return resp.Text(), nil
}

func (a *Agent) classifyModelError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}
	if errors.Is(err, ErrTerminalSent) || strings.Contains(err.Error(), ErrTerminalSent.Error()) {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return fmt.Errorf("%w: %v", ErrModelFailure, err)
}

// terminateWithError emits the terminal error chunk. Best effort: if
// the stream already terminated or the client is gone, there is nothing
// left to tell them.
func (a *Agent) terminateWithError(emitter *Emitter, err error) {
	msg := "An error occurred while processing your request."
	switch {
	case errors.Is(err, ErrRequestTimeout):
		msg = "The request timed out before a response could be completed. Please try again."
	case errors.Is(err, ErrModelFailure):
		msg = "The assistant is temporarily unavailable. Please try again shortly."
	case errors.Is(err, ErrStreamClosed):
		return
	}

	if emitErr := emitter.Error(msg); emitErr != nil && !errors.Is(emitErr, ErrTerminalSent) {
		a.logger.Debug("failed to emit terminal error", "error", emitErr)
	}
}
