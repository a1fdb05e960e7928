package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"captioner/pkg/models"
)

// Progress draws a progress bar for one batch and keeps per-status tallies.
// It implements pipeline.Observer.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	visible bool
	bar     *progressbar.ProgressBar
	counts  map[models.Status]int
	start   time.Time
}

// NewProgress creates a Progress writing to out. The bar is hidden when out
// is not a terminal; the tallies are kept either way.
func NewProgress(out io.Writer) *Progress {
	return &Progress{
		out:     out,
		visible: IsTerminal(out),
		counts:  make(map[models.Status]int),
	}
}

// Start begins a bar of total photos
func (p *Progress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.start = time.Now()
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetVisibility(p.visible),
		progressbar.OptionSetDescription("Captioning"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Advance records one journaled photo
func (p *Progress) Advance(key string, status models.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[status]++
	if p.bar == nil {
		return
	}
	if failed := p.failedLocked(); failed > 0 {
		p.bar.Describe(fmt.Sprintf("Captioning (%d failed)", failed))
	}
	_ = p.bar.Add(1)
}

// Finish closes the bar
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Counts returns a copy of the per-status tallies
func (p *Progress) Counts() map[models.Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[models.Status]int, len(p.counts))
	for s, n := range p.counts {
		out[s] = n
	}
	return out
}

// Rate returns photos per minute since Start
func (p *Progress) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.start).Minutes()
	if p.start.IsZero() || elapsed == 0 {
		return 0
	}
	total := 0
	for _, n := range p.counts {
		total += n
	}
	return float64(total) / elapsed
}

func (p *Progress) failedLocked() int {
	failed := 0
	for s, n := range p.counts {
		if s.IsError() {
			failed += n
		}
	}
	return failed
}
