// Package backend holds the caption services a photo can be sent to.
//
// Every backend implements the same one-method contract and classifies its
// own failures with the kinds in captioner/pkg/errors, so the dispatcher can
// journal them without knowing which service produced them.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"

	"captioner/pkg/config"
	"captioner/pkg/imageload"
	"captioner/pkg/logger"
	"captioner/pkg/ratelimit"
	"captioner/pkg/retry"
)

// Backend captions one normalized image
type Backend interface {
	Name() string
	Caption(ctx context.Context, img *imageload.Image) (string, error)
}

// DefaultModels is the model used by each backend when none is configured
var DefaultModels = map[string]string{
	"mock":      "mock",
	"openai":    "gpt-4o-mini",
	"xai":       "grok-2-vision-latest",
	"anthropic": "claude-3-5-haiku-latest",
	"gemini":    "gemini-1.5-flash",
	"local":     "qwen2.5vl:7b",
}

// DefaultBaseURLs is the API root used by each network backend
var DefaultBaseURLs = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"xai":       "https://api.x.ai/v1",
	"anthropic": "https://api.anthropic.com",
	"gemini":    "https://generativelanguage.googleapis.com/v1beta",
	"local":     "http://localhost:11434",
}

// Options carries everything Load needs to build a backend
type Options struct {
	Backend   config.BackendConfig
	RateLimit config.RateLimitConfig
	Retry     config.RetryConfig
	Logger    logger.Logger
	// HTTPClient overrides the client built from Backend.Timeout
	HTTPClient *http.Client
}

// FromConfig collects the backend related sections of cfg
func FromConfig(cfg *config.Config, log logger.Logger) Options {
	return Options{
		Backend:   cfg.Backend,
		RateLimit: cfg.RateLimit,
		Retry:     cfg.Retry,
		Logger:    log,
	}
}

// Load builds the backend named in opts.Backend.Name
func Load(opts Options) (Backend, error) {
	bc := opts.Backend
	if bc.Model == "" {
		bc.Model = DefaultModels[bc.Name]
	}
	if bc.Prompt == "" {
		bc.Prompt = config.DefaultPrompt
	}
	if bc.MaxTokens <= 0 {
		bc.MaxTokens = 256
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithFields(map[string]interface{}{
		"backend": bc.Name,
		"model":   bc.Model,
	})

	switch bc.Name {
	case "mock":
		return NewMock(bc.Model, bc.ErrorRate), nil
	case "openai", "xai":
		if bc.APIKey == "" {
			return nil, missingKey(bc.Name)
		}
		return newOpenAI(bc, newHTTPClient(bc, opts, log)), nil
	case "anthropic":
		if bc.APIKey == "" {
			return nil, missingKey(bc.Name)
		}
		return newAnthropic(bc, newHTTPClient(bc, opts, log)), nil
	case "gemini":
		if bc.APIKey == "" {
			return nil, missingKey(bc.Name)
		}
		return newGemini(bc, newHTTPClient(bc, opts, log)), nil
	case "local":
		// a local model is never throttled
		opts.RateLimit = config.RateLimitConfig{}
		return newLocal(bc, newHTTPClient(bc, opts, log)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (available: %s)", bc.Name, strings.Join(config.KnownBackends, ", "))
	}
}

// SingleDevice reports whether the named backend must run with one worker
func SingleDevice(name string) bool {
	return name == "local"
}

func missingKey(name string) error {
	return fmt.Errorf("%s is not set; store it with `captioner keys set %s` or export it", config.ProviderEnvVars[name], name)
}

func newHTTPClient(bc config.BackendConfig, opts Options, log logger.Logger) *httpClient {
	base := bc.BaseURL
	if base == "" {
		base = DefaultBaseURLs[bc.Name]
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: bc.Timeout}
	}
	rc := opts.Retry
	if rc.MaxAttempts <= 0 {
		rc = config.DefaultConfig().Retry
	}
	return &httpClient{
		name:    bc.Name,
		http:    hc,
		baseURL: strings.TrimRight(base, "/"),
		headers: map[string]string{},
		limiter: ratelimit.New(opts.RateLimit.RequestsPerMinute, opts.RateLimit.BurstSize),
		retry:   retry.FromSettings(rc, log),
		logger:  log,
	}
}

// normalizeCaption trims a caption and puts it in Unicode NFC form
func normalizeCaption(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
