package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// dequeueTimeout bounds one blocking wait so workers notice shutdown and
// promote delayed jobs at least this often.
const dequeueTimeout = time.Second

// Handler processes one job. A non-nil error (or a panic, which is recovered
// into an error) triggers the queue's retry policy.
type Handler func(ctx context.Context, job *Job) error

// Worker pulls jobs off one queue and runs them through a handler. Each of
// its `concurrency` loops processes one job at a time.
type Worker struct {
	queue       *Queue
	handler     Handler
	concurrency int
	log         zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker returns a worker for q with the given handler and concurrency
// (min 1).
func NewWorker(q *Queue, handler Handler, concurrency int, logger zerolog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		handler:     handler,
		concurrency: concurrency,
		log:         logger.With().Str("component", "worker").Str("queue", q.Name()).Logger(),
	}
}

// Start launches the processing loops. It returns immediately; call Stop to
// drain.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	if moved, err := w.queue.recoverStalled(ctx); err != nil {
		w.log.Error().Err(err).Msg("recover stalled jobs")
	} else if moved > 0 {
		w.log.Warn().Int("jobs", moved).Msg("requeued stalled jobs")
	}
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx)
		}()
	}
	w.log.Info().Int("concurrency", w.concurrency).Msg("worker started")
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info().Msg("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := w.queue.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("promote delayed jobs")
		}

		job, err := w.queue.dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("dequeue")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	start := time.Now()
	err := w.run(ctx, job)
	if err != nil {
		if rerr := w.queue.retryOrFail(ctx, job, err); rerr != nil {
			w.log.Error().Err(rerr).Str("job_id", job.ID).Msg("record job failure")
		}
		return
	}
	if cerr := w.queue.complete(ctx, job); cerr != nil {
		// The job stays on the active list and will be re-run after recovery;
		// processing must therefore be safe to repeat.
		w.log.Error().Err(cerr).Str("job_id", job.ID).Msg("mark job complete")
		return
	}
	w.log.Debug().Str("job_id", job.ID).Str("job_type", job.Type).
		Dur("took", time.Since(start)).Msg("job completed")
}

// run invokes the handler, converting panics into job failures so one bad
// batch cannot take down the worker loop.
func (w *Worker) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}
