// Package llm summarizes meetings with Gemini.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/EasterCompany/dex-scribe-service/interfaces"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"google.golang.org/genai"
)

const (
	// MaxInlineAudioBytes is Gemini's inline request size limit.
	MaxInlineAudioBytes = 20 << 20
	// MaxTranscriptChars bounds transcript input; longer transcripts are truncated.
	MaxTranscriptChars = 1_000_000
)

// ErrInputTooLarge is returned for audio above MaxInlineAudioBytes.
var ErrInputTooLarge = fmt.Errorf("summary %w", interfaces.ErrInputTooLarge)

// Generator is the part of the genai client the summarizer calls.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is a Gemini-backed interfaces.Summarizer.
type Client struct {
	models Generator
	Model  string
	prompt *template.Template
}

// NewClient creates a Gemini client using apiKey.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewClientWith(client.Models, model)
}

// NewClientWith creates a Client over an existing Generator.
func NewClientWith(models Generator, model string) (*Client, error) {
	tmpl, err := template.New("meetingSummary").Parse(meetingSummaryTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse summary template: %w", err)
	}
	return &Client{models: models, Model: model, prompt: tmpl}, nil
}

type promptData struct {
	Meeting    interfaces.MeetingInfo
	Duration   string
	Transcript string
}

// Prompt renders the summary instructions for in.
func (c *Client) Prompt(in interfaces.SummaryInput) (string, error) {
	transcript := utils.Truncate(in.Transcript, MaxTranscriptChars)
	var buf bytes.Buffer
	err := c.prompt.Execute(&buf, promptData{
		Meeting:    in.Meeting,
		Duration:   in.Meeting.Duration.Round(time.Second).String(),
		Transcript: transcript,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute summary template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Summarize makes one GenerateContent call for in.
func (c *Client) Summarize(ctx context.Context, in interfaces.SummaryInput) (string, error) {
	if in.Audio == nil && strings.TrimSpace(in.Transcript) == "" {
		return "", errors.New("summary input is empty")
	}
	if in.Audio != nil && len(in.Audio.Data) > MaxInlineAudioBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrInputTooLarge, len(in.Audio.Data))
	}

	prompt, err := c.Prompt(in)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if in.Audio != nil {
		parts = append(parts, genai.NewPartFromBytes(in.Audio.Data, in.Audio.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := c.models.GenerateContent(ctx, c.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		var text strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 {
			return text.String(), nil
		}
	}
	return "", errors.New("empty response from Gemini")
}
