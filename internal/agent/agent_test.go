package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/search"
	"github.com/campusaid/campusaid/internal/testutil"
	"github.com/campusaid/campusaid/internal/tools"
)

// newTestAgent wires an Agent against the mock model with a degraded
// knowledge base and an unconfigured web search client.
func newTestAgent(t *testing.T, mock *testutil.MockLLM, maxRounds int) *Agent {
	t.Helper()

	ctx := context.Background()
	g := genkit.Init(ctx)
	logger := log.NewNop()

	mock.RegisterModel(g)

	refs := tools.Register(g, tools.Deps{
		Knowledge:  tools.NewKnowledge(nil, []string{"https://www.campus.edu"}, logger),
		WebSearch:  tools.NewWebSearch(search.NewClient("https://api.example.com", "", logger), nil, logger),
		Calculator: tools.NewCalculator(logger),
		Logger:     logger,
	})

	agent, err := New(Config{
		Genkit:         g,
		ModelName:      "mock/test-model",
		SystemPrompt:   "You are a campus support assistant.",
		Tools:          refs,
		MaxToolRounds:  maxRounds,
		RequestTimeout: 10 * time.Second,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return agent
}

// firstToolCall returns the first ledger entry seen in any chunk.
func firstToolCall(chunks []Chunk) *ToolCall {
	for _, c := range chunks {
		if c.Metadata != nil && len(c.Metadata.ToolCalls) > 0 {
			return &c.Metadata.ToolCalls[0]
		}
	}
	return nil
}

func TestExecute_ForcedKnowledgeBaseFirst(t *testing.T) {
	mock := testutil.NewMockLLM("Tuition is due on the first day of the semester.")
	agent := newTestAgent(t, mock, 6)

	var c collectSink
	result, err := agent.Execute(context.Background(), nil, "when is tuition due?", NewEmitter(c.sink))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	first := firstToolCall(c.chunks)
	if first == nil {
		t.Fatal("no tool calls recorded")
	}
	if first.Tool != tools.KnowledgeBaseName {
		t.Errorf("first tool = %q, want %q", first.Tool, tools.KnowledgeBaseName)
	}

	// The degraded knowledge base answered with the fallback text.
	if len(result.ToolCalls) == 0 {
		t.Fatal("result ledger empty")
	}
	output, ok := result.ToolCalls[0].Output.(string)
	if !ok || !strings.Contains(output, "not currently available") {
		t.Errorf("forced call output = %v, want degraded fallback", result.ToolCalls[0].Output)
	}

	if result.Response != "Tuition is due on the first day of the semester." {
		t.Errorf("Response = %q", result.Response)
	}
}

func TestExecute_StreamShape(t *testing.T) {
	mock := testutil.NewMockLLM("final answer text")
	agent := newTestAgent(t, mock, 6)

	var c collectSink
	if _, err := agent.Execute(context.Background(), nil, "any question", NewEmitter(c.sink)); err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	if len(c.chunks) < 3 {
		t.Fatalf("len(chunks) = %d, want tool start, tool end, text, done", len(c.chunks))
	}

	terminals := 0
	for _, chunk := range c.chunks {
		if chunk.Type == ChunkTypeDone || chunk.Type == ChunkTypeError {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("terminal chunks = %d, want exactly 1", terminals)
	}

	last := c.chunks[len(c.chunks)-1]
	if last.Type != ChunkTypeDone {
		t.Errorf("last chunk type = %q, want done", last.Type)
	}
	if last.Content != "" {
		t.Errorf("done content = %q, want empty", last.Content)
	}

	// Token deltas streamed verbatim.
	var streamed strings.Builder
	for _, chunk := range c.chunks {
		if chunk.Type == ChunkTypeChunk && chunk.Metadata == nil {
			streamed.WriteString(chunk.Content)
		}
	}
	if !strings.Contains(streamed.String(), "final answer text") {
		t.Errorf("streamed text = %q, want model output", streamed.String())
	}

	// Chunks are ordered by production; timestamps never go backwards.
	for i := 1; i < len(c.chunks); i++ {
		if c.chunks[i].Timestamp < c.chunks[i-1].Timestamp {
			t.Errorf("timestamp regression at chunk %d", i)
		}
	}
}

func TestExecute_ToolRoundLoop(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("credits", []*ai.ToolRequest{{
		Name:  tools.CalculatorName,
		Input: map[string]any{"expression": "3.5 * 4 + 2.8 * 3"},
		Ref:   "call-1",
	}}, "")
	mock.AddResponse("credits", "Your weighted total is 22.4.")

	agent := newTestAgent(t, mock, 6)

	var c collectSink
	result, err := agent.Execute(context.Background(), nil, "how many weighted credits?", NewEmitter(c.sink))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	if len(result.ToolCalls) != 2 {
		t.Fatalf("len(ToolCalls) = %d, want knowledge base + calculator", len(result.ToolCalls))
	}
	if result.ToolCalls[1].Tool != tools.CalculatorName {
		t.Errorf("second tool = %q, want calculator", result.ToolCalls[1].Tool)
	}
	calcOutput, _ := result.ToolCalls[1].Output.(string)
	if !strings.Contains(calcOutput, "3.5 * 4 + 2.8 * 3 = 22.4") {
		t.Errorf("calculator output = %q", calcOutput)
	}

	foundSummary := false
	for _, chunk := range c.chunks {
		if strings.HasPrefix(chunk.Content, "Calculated: ") {
			foundSummary = true
		}
	}
	if !foundSummary {
		t.Error("no calculator completion summary chunk")
	}

	if result.Response != "Your weighted total is 22.4." {
		t.Errorf("Response = %q", result.Response)
	}
}

func TestExecute_ConcurrentToolsMergeInRequestOrder(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("both", []*ai.ToolRequest{
		{
			Name:  tools.CalculatorName,
			Input: map[string]any{"expression": "1 + 1"},
			Ref:   "call-a",
		},
		{
			Name:  tools.CalculatorName,
			Input: map[string]any{"expression": "2 + 2"},
			Ref:   "call-b",
		},
	}, "")
	mock.AddResponse("both", "done with both")

	agent := newTestAgent(t, mock, 6)

	var c collectSink
	result, err := agent.Execute(context.Background(), nil, "run both calculations", NewEmitter(c.sink))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	// Ledger order follows request order regardless of completion order.
	if len(result.ToolCalls) != 3 {
		t.Fatalf("len(ToolCalls) = %d, want 3", len(result.ToolCalls))
	}
	outA, _ := result.ToolCalls[1].Output.(string)
	outB, _ := result.ToolCalls[2].Output.(string)
	if !strings.Contains(outA, "1 + 1 = 2") {
		t.Errorf("ToolCalls[1] = %q, want first request's result", outA)
	}
	if !strings.Contains(outB, "2 + 2 = 4") {
		t.Errorf("ToolCalls[2] = %q, want second request's result", outB)
	}
}

func TestExecute_MaxRoundsExhausted(t *testing.T) {
	mock := testutil.NewMockLLM("best effort answer")
	// Each tool rule fires once; one rule per allowed round keeps the
	// model requesting tools until the graph cuts it off, then the
	// best-effort generation falls through to the fallback text.
	for range 2 {
		mock.AddToolResponse("loop", []*ai.ToolRequest{{
			Name:  tools.CalculatorName,
			Input: map[string]any{"expression": "1 + 1"},
			Ref:   "loop-call",
		}}, "")
	}

	agent := newTestAgent(t, mock, 2)

	var c collectSink
	result, err := agent.Execute(context.Background(), nil, "loop forever please", NewEmitter(c.sink))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	warned := false
	for _, chunk := range c.chunks {
		if strings.HasPrefix(chunk.Content, "Warning: Reached the maximum of 2 tool rounds") {
			warned = true
		}
	}
	if !warned {
		t.Error("no round-ceiling warning chunk")
	}

	last := c.chunks[len(c.chunks)-1]
	if last.Type != ChunkTypeDone {
		t.Errorf("last chunk type = %q, want done after best-effort answer", last.Type)
	}
	if result.Response == "" {
		t.Error("Response empty, want best-effort answer")
	}
}

func TestExecute_Timeout(t *testing.T) {
	mock := testutil.NewMockLLM("never reached")
	agent := newTestAgent(t, mock, 6)
	agent.requestTimeout = time.Nanosecond

	var c collectSink
	_, err := agent.Execute(context.Background(), nil, "question", NewEmitter(c.sink))
	if err == nil {
		t.Fatal("Execute() = nil, want timeout error")
	}

	if len(c.chunks) == 0 {
		t.Fatal("no chunks emitted")
	}
	last := c.chunks[len(c.chunks)-1]
	if last.Type != ChunkTypeError {
		t.Errorf("last chunk type = %q, want error", last.Type)
	}
	if !strings.Contains(last.Content, "timed out") {
		t.Errorf("error content = %q", last.Content)
	}
}

func TestExecute_HistorySeedsConversation(t *testing.T) {
	mock := testutil.NewMockLLM("answer")
	agent := newTestAgent(t, mock, 6)

	history := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("earlier question")),
		ai.NewModelMessage(ai.NewTextPart("earlier answer")),
	}

	var c collectSink
	if _, err := agent.Execute(context.Background(), history, "follow up", NewEmitter(c.sink)); err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	calls := mock.Calls()
	if len(calls) == 0 {
		t.Fatal("model never called")
	}
	// The mock matches on the latest user message.
	if calls[0].UserMessage != "follow up" {
		t.Errorf("UserMessage = %q, want latest message", calls[0].UserMessage)
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	logger := log.NewNop()
	refs := tools.Register(g, tools.Deps{
		Knowledge:  tools.NewKnowledge(nil, nil, logger),
		WebSearch:  tools.NewWebSearch(search.NewClient("https://api.example.com", "", logger), nil, logger),
		Calculator: tools.NewCalculator(logger),
		Logger:     logger,
	})

	valid := Config{
		Genkit:         g,
		ModelName:      "mock/test-model",
		SystemPrompt:   "prompt",
		Tools:          refs,
		MaxToolRounds:  6,
		RequestTimeout: time.Minute,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing genkit", func(c *Config) { c.Genkit = nil }},
		{"missing model", func(c *Config) { c.ModelName = "" }},
		{"missing prompt", func(c *Config) { c.SystemPrompt = "" }},
		{"missing tools", func(c *Config) { c.Tools = nil }},
		{"zero rounds", func(c *Config) { c.MaxToolRounds = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() = nil, want error")
			}
		})
	}

	if _, err := New(valid); err != nil {
		t.Errorf("New(valid) = %v", err)
	}
}
