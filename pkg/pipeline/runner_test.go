package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captioner/internal/dispatcher"
	"captioner/pkg/backend"
	"captioner/pkg/config"
	"captioner/pkg/journal"
	"captioner/pkg/logger"
	"captioner/pkg/models"
)

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	advanced []string
	finished bool
}

func (o *recordingObserver) Start(pending int) { o.started = pending }

func (o *recordingObserver) Advance(key string, status models.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.advanced = append(o.advanced, key+":"+status.String())
}

func (o *recordingObserver) Finish() { o.finished = true }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{G: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// photoLibrary lays out four photos (one of them unreadable) and a non-photo
func photoLibrary(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	photo := pngBytes(t)
	require.NoError(t, afero.WriteFile(fs, "/photos/a.png", photo, 0644))
	require.NoError(t, afero.WriteFile(fs, "/photos/b.jpg", []byte("not a jpeg"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/photos/notes.txt", []byte("ignored"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/photos/2019/c.png", photo, 0644))
	require.NoError(t, afero.WriteFile(fs, "/photos/2019/d.png", photo, 0644))
	return fs
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Backend.Name = "mock"
	cfg.Backend.Model = "test"
	cfg.Paths.PhotosDir = "/photos"
	cfg.Paths.Journal = filepath.Join(t.TempDir(), "captions.jsonl")
	return cfg
}

func runOnce(t *testing.T, cfg *config.Config, fs afero.Fs, obs Observer) *dispatcher.Report {
	t.Helper()
	b, err := LoadBackend(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	runner, err := New(Options{Config: cfg, Fs: fs, Backend: b, Logger: logger.NewNopLogger(), Observer: obs})
	require.NoError(t, err)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestRunCaptionsLibraryAndResumes(t *testing.T) {
	cfg := testConfig(t)
	fs := photoLibrary(t)

	report := runOnce(t, cfg, fs, nil)
	assert.Equal(t, dispatcher.OutcomeDrained, report.Outcome)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 3, report.Counts[models.StatusSuccess])
	assert.Equal(t, 1, report.Counts[models.StatusErrorCorrupt])

	records, discarded, err := journal.ReadAll(cfg.Paths.Journal)
	require.NoError(t, err)
	assert.Zero(t, discarded)
	require.Len(t, records, 4)
	assert.Equal(t, "a mock caption for test", records["2019/c.png"].Caption())
	assert.Equal(t, models.StatusErrorCorrupt, records["b.jpg"].Status)
	assert.Nil(t, records["b.jpg"].Result)

	report = runOnce(t, cfg, fs, nil)
	assert.Equal(t, dispatcher.OutcomeNothingToDo, report.Outcome)
	assert.Zero(t, report.Processed)
}

func TestRunRetriesSelectedStatuses(t *testing.T) {
	cfg := testConfig(t)
	fs := photoLibrary(t)
	runOnce(t, cfg, fs, nil)

	// the broken photo gets fixed on disk
	require.NoError(t, afero.WriteFile(fs, "/photos/b.jpg", pngBytes(t), 0644))
	cfg.Run.RetryStatus = []string{"error_corrupt"}

	report := runOnce(t, cfg, fs, nil)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Counts[models.StatusSuccess])

	records, _, err := journal.ReadAll(cfg.Paths.Journal)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, records["b.jpg"].Status)
}

func TestRunCheckpointsAfterRestartBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.RestartEvery = 3
	fs := photoLibrary(t)

	report := runOnce(t, cfg, fs, nil)
	assert.Equal(t, dispatcher.OutcomeCheckpoint, report.Outcome)
	assert.Equal(t, 2, report.Outcome.ExitCode())
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Remaining)

	report = runOnce(t, cfg, fs, nil)
	assert.Equal(t, dispatcher.OutcomeDrained, report.Outcome)
	assert.Equal(t, 1, report.Processed)
}

func TestRunForceReprocessesEverything(t *testing.T) {
	cfg := testConfig(t)
	fs := photoLibrary(t)
	runOnce(t, cfg, fs, nil)

	cfg.Run.Force = true
	cfg.Backend.Model = "second"
	report := runOnce(t, cfg, fs, nil)
	assert.Equal(t, 4, report.Processed)

	records, _, err := journal.ReadAll(cfg.Paths.Journal)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, "a mock caption for second", records["a.png"].Caption())
}

func TestRunLimitAndObserver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Limit = 2
	cfg.Run.MaxWorkers = 2
	obs := &recordingObserver{}

	report := runOnce(t, cfg, photoLibrary(t), obs)
	assert.Equal(t, dispatcher.OutcomeDrained, report.Outcome)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, obs.started)
	assert.ElementsMatch(t, []string{"a.png:success", "b.jpg:error_corrupt"}, obs.advanced)
	assert.True(t, obs.finished)
}

func TestRunDryRunUsesMock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Name = "openai"
	cfg.Run.DryRun = true

	runOnce(t, cfg, photoLibrary(t), nil)

	records, _, err := journal.ReadAll(cfg.Paths.Journal)
	require.NoError(t, err)
	assert.Equal(t, "a mock caption for "+backend.DryRunModel, records["a.png"].Caption())
}

func TestRunRefusesLockedJournal(t *testing.T) {
	cfg := testConfig(t)
	lock, err := journal.AcquireLock(cfg.Paths.Journal)
	require.NoError(t, err)
	defer lock.Unlock()

	runner, err := New(Options{Config: cfg, Fs: photoLibrary(t), Backend: backend.NewMock("m", 0), Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, journal.ErrLocked))
}

func TestRunMissingLibrary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.PhotosDir = "/nowhere"

	runner, err := New(Options{Config: cfg, Fs: afero.NewMemMapFs(), Backend: backend.NewMock("m", 0), Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	assert.Error(t, err)
}

func TestNewRequiresConfigAndBackend(t *testing.T) {
	_, err := New(Options{Backend: backend.NewMock("m", 0)})
	assert.Error(t, err)
	_, err = New(Options{Config: config.DefaultConfig()})
	assert.Error(t, err)
}
