package ai

import (
	"strings"
	"testing"
)

func TestSceneTail(t *testing.T) {
	c := &Client{sceneContext: 10}

	t.Run("Short drafts pass through", func(t *testing.T) {
		if got := c.sceneTail("short"); got != "short" {
			t.Errorf("Expected %q, got %q", "short", got)
		}
	})

	t.Run("Long drafts keep only the tail", func(t *testing.T) {
		got := c.sceneTail("the quick brown fox jumps")
		if got != " fox jumps" {
			t.Errorf("Expected the last 10 runes, got %q", got)
		}
	})

	t.Run("Tail is measured in runes", func(t *testing.T) {
		in := strings.Repeat("é", 20)
		got := c.sceneTail(in)
		if got != strings.Repeat("é", 10) {
			t.Errorf("Expected 10 runes, got %d", len([]rune(got)))
		}
	})
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient("", "gemini-2.0-flash", 1024, 4000); err == nil {
		t.Error("Expected an error for a missing API key")
	}
}
