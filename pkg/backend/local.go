package backend

import (
	"context"
	"errors"

	"captioner/pkg/config"
	errs "captioner/pkg/errors"
	"captioner/pkg/imageload"
)

// Local captions with a vision model served on this machine through an
// Ollama compatible /api/generate endpoint. The model owns a single device,
// so it must be driven by one worker. Every failure is recorded as a
// processing error.
type Local struct {
	model     string
	prompt    string
	maxTokens int
	client    *httpClient
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func newLocal(bc config.BackendConfig, client *httpClient) *Local {
	return &Local{
		model:     bc.Model,
		prompt:    bc.Prompt,
		maxTokens: bc.MaxTokens,
		client:    client,
	}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Caption(ctx context.Context, img *imageload.Image) (string, error) {
	req := ollamaRequest{
		Model:   l.model,
		Prompt:  l.prompt,
		Images:  []string{img.Base64()},
		Options: ollamaOptions{NumPredict: l.maxTokens},
	}

	var resp ollamaResponse
	if err := l.client.postJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", asProcessing(err)
	}
	if resp.Error != "" {
		return "", errs.Processing("local", errors.New(resp.Error))
	}
	caption := normalizeCaption(resp.Response)
	if caption == "" {
		return "", errs.Processing("local", errors.New("empty caption"))
	}
	return caption, nil
}

// asProcessing reclassifies err as a local model fault
func asProcessing(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Kind == errs.KindProcessing {
			return err
		}
		return &errs.Error{Kind: errs.KindProcessing, Op: "local", Code: e.Code, Err: err}
	}
	return errs.Processing("local", err)
}
