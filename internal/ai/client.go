// Package ai wraps the Gemini API for drafting assistance: scene
// continuation and chapter summarization.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

var aiLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	aiLogger = l
}

// Client generates prose suggestions from the tail of a chapter draft.
type Client struct {
	client *genai.Client

	model        string
	maxTokens    int32
	sceneContext int
}

// NewClient creates a Gemini-backed assistant client.
func NewClient(apiKey, model string, maxTokens, sceneContext int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("AI API key is required")
	}

	if model == "" {
		model = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	return &Client{
		client:       client,
		model:        model,
		maxTokens:    int32(maxTokens),
		sceneContext: sceneContext,
	}, nil
}

// sceneTail returns the last sceneContext runes of the draft. The model
// only needs the active scene, not the whole chapter.
func (c *Client) sceneTail(content string) string {
	runes := []rune(content)
	if len(runes) <= c.sceneContext {
		return content
	}
	return string(runes[len(runes)-c.sceneContext:])
}

const continuePromptFmt = `You are a fiction co-writer. Continue the scene below in the same voice, tense and point of view. Write one or two paragraphs of prose only, with no preamble and no commentary.

Chapter summary: %s

Scene so far:
%s`

// ContinueScene asks the model to extend the draft. The returned text is a
// suggestion; it is never written into the draft by this package.
func (c *Client) ContinueScene(ctx context.Context, summary, content string) (string, error) {
	prompt := fmt.Sprintf(continuePromptFmt, summary, c.sceneTail(content))
	return c.generate(ctx, prompt)
}

const summarizePromptFmt = `Summarize the following chapter in two or three sentences, focusing on plot developments and character changes. Respond with the summary only.

%s`

// SummarizeChapter asks the model for a short synopsis of the chapter.
func (c *Client) SummarizeChapter(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(summarizePromptFmt, content)
	return c.generate(ctx, prompt)
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("AI generation failed: %w", err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("AI returned an empty response")
	}

	aiLogger.Debug().
		Str("model", c.model).
		Int("prompt_len", len(prompt)).
		Int("response_len", len(text)).
		Msg("AI generation completed")

	return text, nil
}
