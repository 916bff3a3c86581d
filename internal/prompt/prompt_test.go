package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	got := Default()
	if got == "" {
		t.Fatal("Default() returned empty prompt")
	}
	if !strings.Contains(got, "knowledge base") {
		t.Errorf("default prompt missing knowledge base instruction: %q", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("Default() should be trimmed")
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns default", func(t *testing.T) {
		got, err := Load("")
		if err != nil {
			t.Fatalf("Load(\"\") = %v", err)
		}
		if got != Default() {
			t.Error("Load(\"\") should return the embedded default")
		}
	})

	t.Run("file override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(path, []byte("You are a test assistant.\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load() = %v", err)
		}
		if got != "You are a test assistant." {
			t.Errorf("Load() = %q, want trimmed file content", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
			t.Error("Load() = nil, want error for missing file")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.txt")
		if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load() = nil, want error for empty file")
		}
	})
}
