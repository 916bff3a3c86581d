// Package prompt loads the system prompt that steers the agent.
//
// A default prompt is embedded in the binary; operators can override it
// with a plain-text file referenced by config prompt_path.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed system.txt
var defaultPrompt string

// Default returns the embedded system prompt.
func Default() string {
	return strings.TrimSpace(defaultPrompt)
}

// Load returns the system prompt, reading path when it is non-empty.
// An empty path selects the embedded default.
func Load(path string) (string, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file %q: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("prompt file %q is empty", path)
	}
	return text, nil
}
