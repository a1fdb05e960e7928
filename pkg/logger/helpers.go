package logger

import (
	"time"
)

// LogItemFailure records one failed photo at warn level. Never fatal.
func LogItemFailure(l Logger, key string, status string, err error) {
	l.WithError(err).WarnWithFields("Photo failed", map[string]interface{}{
		"key":    key,
		"status": status,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogRunSummary logs the per-status tally of a finished run
func LogRunSummary(l Logger, outcome string, processed, remaining int, counts map[string]int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"outcome":   outcome,
		"processed": processed,
		"remaining": remaining,
		"duration":  elapsed.Round(time.Millisecond),
	}
	for status, n := range counts {
		fields[status] = n
	}
	l.InfoWithFields("Run finished", fields)
}
