// Package logger provides the structured logging interface used across captioner.
//
// It wraps zerolog: pretty console output on stderr, and when a log file is
// configured, JSON lines appended to that file. Every record of one run can
// carry a run_id so a caption.log shared across batches stays searchable.
//
//	if err := logger.Initialize(&cfg.Logging, logger.NewRunID()); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "dispatcher")
//	log.InfoWithFields("Processing", map[string]interface{}{"pending": 120})
//
// NewTestLogger captures messages so tests can assert on warnings.
package logger
