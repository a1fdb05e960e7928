// Package pipeline wires the library scanner, image loader, backend, journal
// and dispatcher into one resumable captioning batch.
package pipeline

import (
	"context"

	"captioner/internal/dispatcher"
	"captioner/pkg/backend"
	"captioner/pkg/config"
	"captioner/pkg/imageload"
	"captioner/pkg/logger"
	"captioner/pkg/models"
)

// Captioner turns a photo on disk into a caption: load and normalize, then
// ask the backend
type Captioner struct {
	loader  *imageload.Loader
	backend backend.Backend
}

var _ dispatcher.Capability = (*Captioner)(nil)

// NewCaptioner creates a Captioner
func NewCaptioner(loader *imageload.Loader, b backend.Backend) *Captioner {
	return &Captioner{loader: loader, backend: b}
}

// Process captions one item. Image failures are classified corrupt by the
// loader, everything else by the backend.
func (c *Captioner) Process(ctx context.Context, item models.Item) (string, error) {
	img, err := c.loader.Load(item.Path)
	if err != nil {
		return "", err
	}
	return c.backend.Caption(ctx, img)
}

// LoadBackend builds the backend cfg asks for. A dry run always uses the
// mock backend so photos are decoded without calling a service.
func LoadBackend(cfg *config.Config, log logger.Logger) (backend.Backend, error) {
	opts := backend.FromConfig(cfg, log)
	if cfg.Run.DryRun {
		opts.Backend.Name = "mock"
		opts.Backend.Model = backend.DryRunModel
		opts.Backend.ErrorRate = 0
	}
	return backend.Load(opts)
}
