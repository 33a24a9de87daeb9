// Package transcribe provides speech-to-text via an OpenAI-compatible audio API.
package transcribe

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI transcribes audio/video files through the /v1/audio/transcriptions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a transcription client. baseURL may be empty for the
// default OpenAI endpoint; model defaults to whisper-1 when empty.
func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

// Transcribe streams the file at path to the transcription service and returns
// the transcript text.
func (t *OpenAI) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	return resp.Text, nil
}
