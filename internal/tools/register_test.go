package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/search"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	logger := log.NewNop()

	refs := Register(g, Deps{
		Knowledge:  NewKnowledge(nil, []string{"https://www.campus.edu"}, logger),
		WebSearch:  NewWebSearch(search.NewClient("https://api.example.com", "", logger), nil, logger),
		Calculator: NewCalculator(logger),
		Logger:     logger,
	})

	if len(refs) != 3 {
		t.Fatalf("len(refs) = %d, want 3", len(refs))
	}

	for _, name := range []string{KnowledgeBaseName, WebSearchName, CalculatorName} {
		if genkit.LookupTool(g, name) == nil {
			t.Errorf("LookupTool(%q) = nil after Register", name)
		}
	}
}

func TestRegister_CalculatorRunRaw(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	logger := log.NewNop()

	Register(g, Deps{
		Knowledge:  NewKnowledge(nil, nil, logger),
		WebSearch:  NewWebSearch(search.NewClient("https://api.example.com", "", logger), nil, logger),
		Calculator: NewCalculator(logger),
		Logger:     logger,
	})

	tool := genkit.LookupTool(g, CalculatorName)
	if tool == nil {
		t.Fatal("calculator tool not registered")
	}

	raw, err := tool.RunRaw(ctx, map[string]any{"expression": "3.5 * 4 + 2.8 * 3"})
	if err != nil {
		t.Fatalf("RunRaw() = %v", err)
	}

	text := outputTextForTest(t, raw)
	if !strings.Contains(text, "3.5 * 4 + 2.8 * 3 = 22.4") {
		t.Errorf("output = %q, want calculation result", text)
	}
}

// outputTextForTest extracts the text field from a raw tool result,
// which may surface as the Output struct or a decoded map.
func outputTextForTest(t *testing.T, raw any) string {
	t.Helper()
	switch v := raw.(type) {
	case Output:
		return v.Text
	case *Output:
		return v.Text
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			return s
		}
	}
	t.Fatalf("unexpected tool output type %T", raw)
	return ""
}
