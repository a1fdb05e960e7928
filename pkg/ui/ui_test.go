package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captioner/pkg/config"
	"captioner/pkg/estimate"
	"captioner/pkg/models"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(title, message string) error {
	f.sent = append(f.sent, title+"|"+message)
	return errors.New("no notification daemon")
}

func init() {
	SetColor(false)
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	RenderStats(&buf, map[models.Status]int{
		models.StatusSuccess:         1234,
		models.StatusErrorCapability: 16,
	}, 2)

	out := buf.String()
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "error_corrupt")
	assert.Contains(t, out, "1,250")
	assert.Contains(t, out, "98.7%")
	assert.Contains(t, out, "2 malformed lines were skipped")
}

func TestRenderStatsEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderStats(&buf, map[models.Status]int{}, 0)
	assert.Equal(t, "No records found.\n", buf.String())
}

func TestRenderEstimate(t *testing.T) {
	var buf bytes.Buffer
	RenderEstimate(&buf, estimate.Compute("openai", "gpt-4o-mini", 12000, 2000, 8))

	out := buf.String()
	assert.Contains(t, out, "10,000 / 12,000 (2,000 already done)")
	assert.Contains(t, out, "openai / gpt-4o-mini")
	assert.Contains(t, out, "= ~$2.00")
	assert.Contains(t, out, "~16m40s at 8 workers")
	assert.NotContains(t, out, "default per-image rate")

	buf.Reset()
	RenderEstimate(&buf, estimate.Compute("local", "unknown-model", 1, 0, 1))
	assert.Contains(t, buf.String(), "default per-image rate")
}

func TestNotifier(t *testing.T) {
	cfg := config.NotificationConfig{Enabled: true, OnCheckpoint: true, OnComplete: false, NotificationType: "desktop"}
	sender := &fakeSender{}
	var out bytes.Buffer
	n := NewNotifierWithSender(cfg, sender, &out)

	n.Checkpoint(500, 12345)
	n.Drained(10)
	n.Failed(errors.New("disk full"))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Batch checkpointed|500 photos captioned, 12,345 remaining", sender.sent[0])
	assert.Equal(t, "Captioning stopped|disk full", sender.sent[1])
	assert.Contains(t, out.String(), "Batch checkpointed")
	assert.NotContains(t, out.String(), "Library captioned")
}

func TestNotifierDisabled(t *testing.T) {
	sender := &fakeSender{}
	var out bytes.Buffer
	n := NewNotifierWithSender(config.NotificationConfig{OnCheckpoint: true, OnComplete: true}, sender, &out)

	n.Checkpoint(1, 1)
	n.Drained(1)
	assert.Empty(t, sender.sent)
	assert.Empty(t, out.String())
}

func TestTerminalNotificationsSkipDesktop(t *testing.T) {
	cfg := config.NotificationConfig{Enabled: true, OnComplete: true, NotificationType: "terminal"}
	sender := &fakeSender{}
	var out bytes.Buffer

	NewNotifierWithSender(cfg, sender, &out).Drained(3)
	assert.Empty(t, sender.sent)
	assert.Contains(t, out.String(), "Library captioned: 3 photos")
}

func TestProgressCountsWithoutTerminal(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out)
	p.Start(3)
	p.Advance("a.jpg", models.StatusSuccess)
	p.Advance("b.jpg", models.StatusErrorCorrupt)
	p.Advance("c.jpg", models.StatusSuccess)
	p.Finish()

	assert.Equal(t, map[models.Status]int{
		models.StatusSuccess:      2,
		models.StatusErrorCorrupt: 1,
	}, p.Counts())
	assert.Empty(t, out.String(), "bar is hidden off a terminal")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "16m40s", FormatDuration(1000*time.Second))
	assert.Equal(t, "2h5m", FormatDuration(2*time.Hour+5*time.Minute))
}

func TestRenderRates(t *testing.T) {
	var buf bytes.Buffer
	RenderRates(&buf, estimate.Rates, estimate.Models())

	out := buf.String()
	assert.Contains(t, out, "gpt-4o-mini")
	assert.Contains(t, out, "0.00015")
	assert.Contains(t, out, "0.00020")
}
