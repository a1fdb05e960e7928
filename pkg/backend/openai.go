package backend

import (
	"context"
	"errors"

	"captioner/pkg/config"
	errs "captioner/pkg/errors"
	"captioner/pkg/imageload"
)

// OpenAI talks to an OpenAI compatible /chat/completions endpoint. It also
// serves xAI, which speaks the same protocol.
type OpenAI struct {
	name      string
	model     string
	prompt    string
	maxTokens int
	client    *httpClient
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func newOpenAI(bc config.BackendConfig, client *httpClient) *OpenAI {
	client.SetHeader("Authorization", "Bearer "+bc.APIKey)
	return &OpenAI{
		name:      bc.Name,
		model:     bc.Model,
		prompt:    bc.Prompt,
		maxTokens: bc.MaxTokens,
		client:    client,
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Caption(ctx context.Context, img *imageload.Image) (string, error) {
	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{
				{Type: "image_url", ImageURL: &chatImageURL{URL: img.DataURL(), Detail: "low"}},
				{Type: "text", Text: o.prompt},
			},
		}},
		MaxTokens: o.maxTokens,
	}

	var resp chatResponse
	if err := o.client.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errs.Processing(o.name, errors.New("response has no choices"))
	}
	caption := normalizeCaption(resp.Choices[0].Message.Content)
	if caption == "" {
		return "", errs.Processing(o.name, errors.New("empty caption"))
	}
	return caption, nil
}
