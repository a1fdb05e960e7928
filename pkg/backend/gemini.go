package backend

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"captioner/pkg/config"
	errs "captioner/pkg/errors"
	"captioner/pkg/imageload"
)

// Gemini talks to the generateContent endpoint of the Generative Language API
type Gemini struct {
	model     string
	prompt    string
	maxTokens int
	client    *httpClient
}

type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func newGemini(bc config.BackendConfig, client *httpClient) *Gemini {
	client.SetHeader("x-goog-api-key", bc.APIKey)
	return &Gemini{
		model:     bc.Model,
		prompt:    bc.Prompt,
		maxTokens: bc.MaxTokens,
		client:    client,
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Caption(ctx context.Context, img *imageload.Image) (string, error) {
	req := generateRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: g.prompt},
				{InlineData: &inlineData{MimeType: img.MediaType(), Data: img.Base64()}},
			},
		}},
		GenerationConfig: generationConfig{MaxOutputTokens: g.maxTokens},
	}

	var resp generateResponse
	path := "/models/" + url.PathEscape(g.model) + ":generateContent"
	if err := g.client.postJSON(ctx, path, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		// blocked prompts come back without candidates
		return "", errs.Processing("gemini", errors.New("response has no candidates"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	caption := normalizeCaption(text.String())
	if caption == "" {
		return "", errs.Processing("gemini", errors.New("empty caption"))
	}
	return caption, nil
}
