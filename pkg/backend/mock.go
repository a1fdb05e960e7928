package backend

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	errs "captioner/pkg/errors"
	"captioner/pkg/imageload"
)

// DryRunModel is the mock model used to validate photos without calling a service
const DryRunModel = "dry-run"

// Mock returns a fixed caption and optionally fails a fraction of photos
type Mock struct {
	model     string
	errorRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock creates a mock backend. errorRate is the probability in [0, 1]
// that a call fails with a corrupt-image error.
func NewMock(model string, errorRate float64) *Mock {
	if model == "" {
		model = "mock"
	}
	return &Mock{
		model:     model,
		errorRate: errorRate,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

func (m *Mock) Name() string { return "mock" }

// Caption returns "a mock caption for <model>"
func (m *Mock) Caption(ctx context.Context, img *imageload.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Capability("mock", err)
	}
	if m.errorRate > 0 && m.roll() < m.errorRate {
		return "", errs.Corrupt("mock", errors.New("simulated error"))
	}
	return "a mock caption for " + m.model, nil
}

func (m *Mock) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}
