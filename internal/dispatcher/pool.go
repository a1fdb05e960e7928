package dispatcher

import (
	"golang.org/x/sync/errgroup"

	"captioner/pkg/logger"
	"captioner/pkg/models"
)

// workerPool runs handle for submitted items on a fixed number of goroutines
type workerPool struct {
	numWorkers  int
	jobQueue    chan models.Item
	resultQueue chan Result
	group       errgroup.Group
	handle      func(models.Item) Result
	// stopped reports whether queued items should be dropped instead of processed
	stopped func() bool
	logger  logger.Logger
}

// newWorkerPool sizes both queues to capacity so a full chunk can be
// submitted and collected without blocking the workers
func newWorkerPool(numWorkers, capacity int, handle func(models.Item) Result, stopped func() bool, log logger.Logger) *workerPool {
	return &workerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan models.Item, capacity),
		resultQueue: make(chan Result, capacity),
		handle:      handle,
		stopped:     stopped,
		logger:      log,
	}
}

// Start launches all workers
func (wp *workerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"capacity":    cap(wp.jobQueue),
	})

	for i := 0; i < wp.numWorkers; i++ {
		id := i
		wp.group.Go(func() error {
			return wp.worker(id)
		})
	}
}

// Stop closes the job queue, waits for every worker to exit and returns the
// first journal write failure any worker hit
func (wp *workerPool) Stop() error {
	close(wp.jobQueue)
	err := wp.group.Wait()
	close(wp.resultQueue)
	wp.logger.Debug("Worker pool stopped")
	return err
}

// Submit queues one item. The queue never holds more than one chunk, so
// this does not block.
func (wp *workerPool) Submit(item models.Item) {
	wp.jobQueue <- item
}

// Results returns the result channel
func (wp *workerPool) Results() <-chan Result {
	return wp.resultQueue
}

// worker keeps draining the queue after a write failure so every submitted
// item still produces a result, and reports the failure when the queue closes
func (wp *workerPool) worker(id int) error {
	var writeErr error
	for item := range wp.jobQueue {
		if wp.stopped() {
			wp.resultQueue <- Result{Item: item, Skipped: true}
			continue
		}

		wp.logger.DebugWithFields("Worker processing photo", map[string]interface{}{
			"worker_id": id,
			"key":       item.Key,
		})
		res := wp.handle(item)
		if res.WriteErr != nil && writeErr == nil {
			writeErr = res.WriteErr
		}
		wp.resultQueue <- res
	}
	return writeErr
}
