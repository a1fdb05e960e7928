package backend

import (
	"context"
	"errors"

	"captioner/pkg/config"
	errs "captioner/pkg/errors"
	"captioner/pkg/imageload"
)

const anthropicVersion = "2023-06-01"

// Anthropic talks to the Messages API
type Anthropic struct {
	model     string
	prompt    string
	maxTokens int
	client    *httpClient
}

type messagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func newAnthropic(bc config.BackendConfig, client *httpClient) *Anthropic {
	client.SetHeader("x-api-key", bc.APIKey)
	client.SetHeader("anthropic-version", anthropicVersion)
	return &Anthropic{
		model:     bc.Model,
		prompt:    bc.Prompt,
		maxTokens: bc.MaxTokens,
		client:    client,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Caption(ctx context.Context, img *imageload.Image) (string, error) {
	req := messagesRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicBlock{
				{Type: "image", Source: &anthropicSource{Type: "base64", MediaType: img.MediaType(), Data: img.Base64()}},
				{Type: "text", Text: a.prompt},
			},
		}},
	}

	var resp messagesResponse
	if err := a.client.postJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		if caption := normalizeCaption(block.Text); caption != "" {
			return caption, nil
		}
	}
	return "", errs.Processing("anthropic", errors.New("response has no text"))
}
