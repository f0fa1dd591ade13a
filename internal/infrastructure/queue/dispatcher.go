package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	defaultBuffer  = 256
	jobTimeout     = 30 * time.Second
)

// Dispatcher routes notification jobs to a fixed set of workers using
// consistent hashing on the parcel ID, so jobs for one parcel are handled in
// the order they were enqueued.
type Dispatcher struct {
	workers []chan ports.NotificationJob
	handler ports.NotificationHandler
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers, each
// with a queue of buffer jobs. Non-positive values use the defaults.
func NewDispatcher(numWorkers, buffer int, handler ports.NotificationHandler, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	d := &Dispatcher{
		workers: make([]chan ports.NotificationJob, numWorkers),
		handler: handler,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.NotificationJob, buffer)
	}
	return d
}

// Start launches all worker goroutines. When ctx is cancelled each worker
// handles the jobs already queued for it, then returns.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands a job to the worker responsible for its parcel. It never
// blocks: when that worker's queue is full the job is dropped.
func (d *Dispatcher) Enqueue(job ports.NotificationJob) {
	idx := d.shardIndex(job.ParcelID)
	select {
	case d.workers[idx] <- job:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.NotificationsDroppedTotal.Inc()
		d.log.Warn().
			Str("parcel_id", job.ParcelID).
			Str("status", string(job.To)).
			Int("worker_id", idx).
			Msg("notification queue full, job dropped")
	}
}

// shardIndex maps a parcel ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(parcelID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(parcelID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.NotificationJob) {
	defer d.wg.Done()
	depth := metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx, id, ch)
			return
		case job := <-ch:
			depth.Set(float64(len(ch)))
			d.handle(ctx, id, job)
		}
	}
}

// drain handles whatever is still buffered once the worker is stopped.
func (d *Dispatcher) drain(ctx context.Context, id int, ch <-chan ports.NotificationJob) {
	for {
		select {
		case job := <-ch:
			d.handle(ctx, id, job)
		default:
			metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(0)
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, id int, job ports.NotificationJob) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("parcel_id", job.ParcelID).Int("worker_id", id).Msg("notification handler panicked")
		}
	}()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()

	if err := d.handler.Handle(jobCtx, job); err != nil {
		d.log.Error().Err(err).
			Str("parcel_id", job.ParcelID).
			Str("tracking_number", job.TrackingNumber).
			Str("status", string(job.To)).
			Int("worker_id", id).
			Msg("notification processing failed")
	}
}
