package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"captioner/pkg/logger"
	"captioner/pkg/models"
)

// Journal is the append-only record of every photo outcome
type Journal struct {
	path   string
	logger logger.Logger

	// writeMu serializes the append, fsync and done-set update of one record
	writeMu sync.Mutex
	file    appendFile
	// size is the file length after the last complete append
	size int64
	open func(path string) (appendFile, error)

	doneMu sync.RWMutex
	done   map[string]struct{}

	records   map[string]models.Record
	discarded int
}

// appendFile is the subset of *os.File the journal writes through
type appendFile interface {
	io.Writer
	io.ReaderAt
	Stat() (os.FileInfo, error)
	Sync() error
	Close() error
}

func openAppend(path string) (appendFile, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
}

// New creates a journal bound to path. No I/O happens until Load or Write.
func New(path string, log logger.Logger) *Journal {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Journal{
		path:    path,
		logger:  log.WithField("component", "journal"),
		done:    make(map[string]struct{}),
		records: make(map[string]models.Record),
		open:    openAppend,
	}
}

// Path returns the journal file location
func (j *Journal) Path() string {
	return j.path
}

// wireRecord accepts both the current field names and the legacy
// rel_path/caption names
type wireRecord struct {
	Key     *string         `json:"key"`
	RelPath *string         `json:"rel_path"`
	Result  json.RawMessage `json:"result"`
	Caption json.RawMessage `json:"caption"`
	Status  *string         `json:"status"`
}

var errMalformed = errors.New("malformed record")

func parseLine(line []byte) (models.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return models.Record{}, err
	}

	key := w.Key
	if key == nil {
		key = w.RelPath
	}
	if key == nil || *key == "" {
		return models.Record{}, fmt.Errorf("%w: missing key", errMalformed)
	}

	raw := w.Result
	if raw == nil {
		raw = w.Caption
	}
	if raw == nil {
		return models.Record{}, fmt.Errorf("%w: missing result", errMalformed)
	}
	var result *string
	if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Record{}, fmt.Errorf("%w: result is not a string", errMalformed)
		}
		result = &s
	}

	if w.Status == nil {
		return models.Record{}, fmt.Errorf("%w: missing status", errMalformed)
	}
	status, err := models.ParseStatus(*w.Status)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", errMalformed, err)
	}

	return models.Record{Key: *key, Result: result, Status: status}, nil
}

// Load replays the journal from the start and rebuilds the done set.
// A key is done when its latest record has a status outside retry.
// Malformed lines are skipped and counted; only I/O errors are returned.
func (j *Journal) Load(retry models.StatusSet) (map[string]models.Record, error) {
	records, discarded, err := readRecords(j.path)
	if err != nil {
		return nil, err
	}

	done := make(map[string]struct{}, len(records))
	for key, rec := range records {
		if !retry.Has(rec.Status) {
			done[key] = struct{}{}
		}
	}

	j.doneMu.Lock()
	j.records = records
	j.discarded = discarded
	j.done = done
	j.doneMu.Unlock()

	if discarded > 0 {
		j.logger.WarnWithFields("Discarded malformed journal lines", map[string]interface{}{
			"path":      j.path,
			"discarded": discarded,
		})
	}
	j.logger.DebugWithFields("Journal loaded", map[string]interface{}{
		"path":    j.path,
		"records": len(records),
		"done":    len(done),
	})

	return copyRecords(records), nil
}

func readRecords(path string) (map[string]models.Record, int, error) {
	records := make(map[string]models.Record)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return records, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	discarded := 0
	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, 0, fmt.Errorf("failed to read journal: %w", readErr)
		}

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			rec, err := parseLine(trimmed)
			if err != nil {
				discarded++
			} else {
				records[rec.Key] = rec
			}
		}

		if readErr != nil {
			break
		}
	}
	return records, discarded, nil
}

// ReadAll loads every record at path without touching any done set
func ReadAll(path string) (map[string]models.Record, int, error) {
	return readRecords(path)
}

// IsDone reports whether key needs no further processing this run
func (j *Journal) IsDone(key string) bool {
	j.doneMu.RLock()
	defer j.doneMu.RUnlock()
	_, ok := j.done[key]
	return ok
}

// Write durably appends one outcome and marks key done. The record is on
// stable storage when Write returns nil. Any error means the outcome may not
// have been committed and the caller must stop.
func (j *Journal) Write(key string, result *string, status models.Status) error {
	if key == "" {
		return errors.New("journal write: empty key")
	}
	if !status.Valid() {
		return fmt.Errorf("journal write: invalid status %q", status)
	}
	if status == models.StatusSuccess && result == nil {
		return fmt.Errorf("journal write %s: success without a result", key)
	}

	line, err := encodeLine(models.Record{Key: key, Result: result, Status: status})
	if err != nil {
		return fmt.Errorf("journal write %s: %w", key, err)
	}

	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	if err := j.openLocked(); err != nil {
		return err
	}
	if err := j.checkTailLocked(); err != nil {
		return j.abandonLocked(fmt.Errorf("journal write %s: %w", key, err))
	}
	n, err := j.file.Write(line)
	j.size += int64(n)
	if err != nil {
		return j.abandonLocked(fmt.Errorf("journal write %s: %w", key, err))
	}
	if err := j.file.Sync(); err != nil {
		return j.abandonLocked(fmt.Errorf("journal sync %s: %w", key, err))
	}

	j.doneMu.Lock()
	j.done[key] = struct{}{}
	j.doneMu.Unlock()
	return nil
}

func encodeLine(rec models.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// openLocked opens the journal for appending. Must hold writeMu.
func (j *Journal) openLocked() error {
	if j.file != nil {
		return nil
	}

	_, statErr := os.Stat(j.path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := j.open(j.path)
	if err != nil {
		return fmt.Errorf("failed to open journal for append: %w", err)
	}

	size, err := sealTornLine(f)
	if err != nil {
		f.Close()
		return err
	}
	if created {
		if err := syncDir(filepath.Dir(j.path)); err != nil {
			f.Close()
			return err
		}
	}

	j.file = f
	j.size = size
	return nil
}

// checkTailLocked seals the tail again when the file no longer ends where
// the last complete append left it. Must hold writeMu.
func (j *Journal) checkTailLocked() error {
	info, err := j.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	if info.Size() == j.size {
		return nil
	}
	size, err := sealTornLine(j.file)
	if err != nil {
		return err
	}
	j.size = size
	return nil
}

// abandonLocked drops the handle after a failed append so the next Write
// reopens and seals whatever fragment the failure left. Must hold writeMu.
func (j *Journal) abandonLocked(err error) error {
	if closeErr := j.file.Close(); closeErr != nil {
		j.logger.WithError(closeErr).Warn("Failed to close journal after write error")
	}
	j.file = nil
	j.size = 0
	return err
}

// sealTornLine terminates a final line left without its newline by a crash
// or a failed append, so the next record starts on a line of its own. It
// returns the resulting file size.
func sealTornLine(f appendFile) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat journal: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("failed to inspect journal tail: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return 0, fmt.Errorf("failed to seal journal tail: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync journal tail: %w", err)
	}
	return size + 1, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open journal directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal directory: %w", err)
	}
	return nil
}

// Close releases the file handle. Safe to call repeatedly; a later Write reopens.
func (j *Journal) Close() error {
	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	j.size = 0
	if err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// Records returns a copy of the records replayed by the last Load
func (j *Journal) Records() map[string]models.Record {
	j.doneMu.RLock()
	defer j.doneMu.RUnlock()
	return copyRecords(j.records)
}

// Len returns the number of distinct keys replayed by the last Load
func (j *Journal) Len() int {
	j.doneMu.RLock()
	defer j.doneMu.RUnlock()
	return len(j.records)
}

// Discarded returns the number of malformed lines skipped by the last Load
func (j *Journal) Discarded() int {
	j.doneMu.RLock()
	defer j.doneMu.RUnlock()
	return j.discarded
}

// Counts tallies the loaded records by status
func (j *Journal) Counts() map[models.Status]int {
	j.doneMu.RLock()
	defer j.doneMu.RUnlock()
	return CountByStatus(j.records)
}

// CountByStatus tallies records by status, with every status present
func CountByStatus(records map[string]models.Record) map[models.Status]int {
	counts := make(map[models.Status]int, len(models.AllStatuses()))
	for _, s := range models.AllStatuses() {
		counts[s] = 0
	}
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}

// Summary describes what the last Load found
func (j *Journal) Summary() string {
	counts := j.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	success := counts[models.StatusSuccess]
	return fmt.Sprintf("Skipping %d already processed (%d success, %d errors)", total, success, total-success)
}

func copyRecords(src map[string]models.Record) map[string]models.Record {
	out := make(map[string]models.Record, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
