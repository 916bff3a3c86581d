// Package tools implements the agent's tool adapters: knowledge base
// search, web search, and a calculator.
//
// Every adapter follows the same contract: structured input in, a text
// result plus structured source metadata out. Failures are folded into
// the result text so the model can react to them; adapters never return
// an error past the tool boundary.
package tools

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/campusaid/campusaid/internal/log"
)

// Registered tool names. The orchestration graph references these when
// forcing the knowledge-base call and summarizing tool activity.
const (
	KnowledgeBaseName = "knowledge_base_tool"
	WebSearchName     = "web_search_tool"
	CalculatorName    = "calculator_tool"
)

// Source attributes part of a tool result to a document or page.
type Source struct {
	Source string  `json:"source,omitempty"`
	URL    string  `json:"url,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// Output is the uniform tool result: text for the model, sources for
// the client.
type Output struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// Deps holds the adapters to register.
type Deps struct {
	Knowledge  *Knowledge
	WebSearch  *WebSearch
	Calculator *Calculator
	Logger     log.Logger
}

// Register defines all three tools on the Genkit instance and returns
// their references for generation calls.
func Register(g *genkit.Genkit, deps Deps) []ai.Tool {
	knowledge := genkit.DefineTool(g, KnowledgeBaseName,
		"MANDATORY FIRST STEP: Search the campus knowledge base for information about policies, procedures, financial aid, admissions, and other support topics. This tool MUST be used for every single user query before providing any answer. No exceptions.",
		func(ctx *ai.ToolContext, input KnowledgeInput) (Output, error) {
			return deps.Knowledge.Run(ctx, input), nil
		})

	webSearch := genkit.DefineTool(g, WebSearchName,
		"Search the web for current information when the knowledge base doesn't have sufficient information. Use this as a fallback after searching the knowledge base.",
		func(ctx *ai.ToolContext, input WebSearchInput) (Output, error) {
			return deps.WebSearch.Run(ctx, input), nil
		})

	calculator := genkit.DefineTool(g, CalculatorName,
		"Perform mathematical calculations. Useful for GPA calculations, financial aid amounts, credit hour calculations, etc.",
		func(_ *ai.ToolContext, input CalculatorInput) (Output, error) {
			return deps.Calculator.Run(input), nil
		})

	return []ai.Tool{knowledge, webSearch, calculator}
}
