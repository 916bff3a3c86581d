package agent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campusaid/campusaid/internal/tools"
)

// Chunk types in the stream union. ChunkTypeTool is part of the wire
// contract for clients even though graph events currently surface as
// "chunk"; clients must ignore unknown types.
const (
	ChunkTypeChunk = "chunk"
	ChunkTypeTool  = "tool"
	ChunkTypeDone  = "done"
	ChunkTypeError = "error"
)

// toolCallPending is the ledger output until a tool finishes.
const toolCallPending = "In progress..."

// ToolCall is one entry in a request's tool-call ledger.
type ToolCall struct {
	Tool   string `json:"tool"`
	Input  any    `json:"input"`
	Output any    `json:"output"`
}

// Metadata carries structured chunk payload beyond the text content.
type Metadata struct {
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Sources   []tools.Source `json:"sources,omitempty"`
}

// Chunk is one unit of the typed event stream sent to a client.
type Chunk struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Sink receives chunks in order. A Sink error is treated as a broken
// client connection and aborts the request.
type Sink func(Chunk) error

// ErrTerminalSent reports a chunk emitted after the stream terminated.
var ErrTerminalSent = errors.New("stream already terminated")

// Emitter translates graph events into ordered chunks and enforces the
// exactly-one-terminal invariant centrally, so no graph path can leak a
// second done/error or a chunk after the end.
type Emitter struct {
	mu       sync.Mutex
	sink     Sink
	terminal bool
	calls    []ToolCall
}

// NewEmitter creates an emitter writing to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

func (e *Emitter) emit(c Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emitLocked(c)
}

func (e *Emitter) emitLocked(c Chunk) error {
	if e.terminal {
		return ErrTerminalSent
	}
	if c.Type == ChunkTypeDone || c.Type == ChunkTypeError {
		e.terminal = true
	}
	c.Timestamp = time.Now().UnixMilli()
	return e.sink(c)
}

// ledgerLocked snapshots the tool-call ledger for chunk metadata.
func (e *Emitter) ledgerLocked() []ToolCall {
	snapshot := make([]ToolCall, len(e.calls))
	copy(snapshot, e.calls)
	return snapshot
}

// Text streams a reasoning token delta verbatim.
func (e *Emitter) Text(content string) error {
	if content == "" {
		return nil
	}
	return e.emit(Chunk{Type: ChunkTypeChunk, Content: content})
}

// ToolStart records a tool invocation in the ledger and announces it.
// Returns the ledger index for the matching ToolEnd.
func (e *Emitter) ToolStart(tool string, input any) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, ToolCall{Tool: tool, Input: input, Output: toolCallPending})
	idx := len(e.calls) - 1

	err := e.emitLocked(Chunk{
		Type:     ChunkTypeChunk,
		Content:  fmt.Sprintf("Using %s...\n\n", tool),
		Metadata: &Metadata{ToolCalls: e.ledgerLocked()},
	})
	return idx, err
}

// ToolEnd completes a ledger entry and streams a short summary of the
// tool's completion, never the raw payload.
func (e *Emitter) ToolEnd(idx int, output tools.Output) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx < 0 || idx >= len(e.calls) {
		return fmt.Errorf("tool call index %d out of range", idx)
	}
	e.calls[idx].Output = output.Text

	return e.emitLocked(Chunk{
		Type:     ChunkTypeChunk,
		Content:  toolSummary(e.calls[idx].Tool, output),
		Metadata: &Metadata{ToolCalls: e.ledgerLocked(), Sources: output.Sources},
	})
}

// Warning streams a non-fatal notice.
func (e *Emitter) Warning(content string) error {
	return e.emit(Chunk{Type: ChunkTypeChunk, Content: content})
}

// Done terminates the stream successfully. The payload is empty; the
// final ledger rides in metadata.
func (e *Emitter) Done() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var md *Metadata
	if len(e.calls) > 0 {
		md = &Metadata{ToolCalls: e.ledgerLocked()}
	}
	return e.emitLocked(Chunk{Type: ChunkTypeDone, Metadata: md})
}

// Error terminates the stream with a failure description.
func (e *Emitter) Error(msg string) error {
	return e.emit(Chunk{Type: ChunkTypeError, Content: msg})
}

// Calls returns a copy of the accumulated tool-call ledger.
func (e *Emitter) Calls() []ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledgerLocked()
}

// toolSummary is the human-readable completion line per tool kind.
func toolSummary(tool string, output tools.Output) string {
	switch tool {
	case tools.KnowledgeBaseName:
		return "Found information in knowledge base...\n\n"
	case tools.WebSearchName:
		return "Searched the web for current information...\n\n"
	case tools.CalculatorName:
		return fmt.Sprintf("Calculated: %s\n\n", output.Text)
	default:
		return fmt.Sprintf("Completed %s...\n\n", tool)
	}
}
