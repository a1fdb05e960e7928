// Package journal provides the durable, append-only record of photo outcomes.
//
// Each line of the journal file is one JSON object:
//
//	{"key": "2019/beach/IMG_0001.jpg", "result": "Two dogs running on a beach.", "status": "success"}
//	{"key": "2019/beach/IMG_0002.heic", "result": null, "status": "error_corrupt"}
//
// The file is only ever appended to. Replaying it from the start with
// last-write-wins rebuilds the latest outcome per key, so retrying a photo is
// just another append. Every Write is fsynced before it returns, which keeps
// "the dispatcher considers this photo done" and "this outcome survives a
// crash" in step.
//
// Loading is tolerant: a line truncated by a crash, or any other line that is
// not a valid record, is skipped and counted. Older journals written with the
// rel_path and caption field names, or with the error_api and error_model
// statuses, load as their current equivalents.
//
// A journal has a single writer. AcquireLock takes an advisory lock on
// <journal>.lock so a second run against the same file is refused.
package journal
