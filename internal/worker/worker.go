// Package worker drives the delivery state machine: it consumes the durable
// queue, fans work into per-recipient lanes so one recipient's deliveries
// never reorder, and runs the redelivery sweep.
package worker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/queue"
)

type ProcessFunc func(ctx context.Context, msg queue.Message) error

type SweepFunc func(ctx context.Context)

type Options struct {
	Lanes         int
	SweepInterval time.Duration
	RetryDelay    time.Duration
}

type Worker struct {
	queue   queue.Queue
	process ProcessFunc
	sweep   SweepFunc
	opts    Options

	done chan struct{}
	wg   sync.WaitGroup
}

func New(q queue.Queue, process ProcessFunc, sweep SweepFunc, opts Options) *Worker {
	if opts.Lanes < 1 {
		opts.Lanes = 1
	}
	return &Worker{
		queue:   q,
		process: process,
		sweep:   sweep,
		opts:    opts,
		done:    make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	zlog.Logger.Info().Int("lanes", w.opts.Lanes).Msg("Starting delivery worker")

	lanes := make([]chan queue.Delivery, w.opts.Lanes)
	for i := range lanes {
		lanes[i] = make(chan queue.Delivery, 16)
		w.wg.Add(1)
		go w.runLane(ctx, lanes[i])
	}

	w.wg.Add(1)
	go w.runSweep(ctx)

	w.dispatch(ctx, lanes)

	for _, lane := range lanes {
		close(lane)
	}
	w.wg.Wait()
	zlog.Logger.Info().Msg("Delivery worker stopped")
}

func (w *Worker) Stop() {
	close(w.done)
}

// dispatch pulls broker deliveries and routes each to the lane owning its
// recipient, reconnecting if the consume channel dies.
func (w *Worker) dispatch(ctx context.Context, lanes []chan queue.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		default:
		}

		deliveries, err := w.queue.Consume(ctx)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to consume deliveries")
			select {
			case <-time.After(w.opts.RetryDelay):
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
			continue
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case d, ok := <-deliveries:
				if !ok {
					deliveries = nil
				} else {
					lanes[laneFor(d.RecipientID, len(lanes))] <- d
				}
			}
			if deliveries == nil {
				break
			}
		}
	}
}

func (w *Worker) runLane(ctx context.Context, lane <-chan queue.Delivery) {
	defer w.wg.Done()
	for d := range lane {
		w.handle(ctx, d)
	}
}

func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	zlog.Logger.Debug().Str("id", d.NotificationID).Msg("Processing delivery")
	err := w.process(ctx, d.Message)
	if err == nil {
		w.settle(d.Ack, "ack", d.NotificationID)
		return
	}
	zlog.Logger.Error().Err(err).Str("id", d.NotificationID).Msg("Failed to process delivery")
	// transient failure: retry through the delayed exchange; the durable
	// record is untouched, so nothing is lost either way
	if reqErr := w.queue.EnqueueDelayed(ctx, d.Message, w.opts.RetryDelay); reqErr != nil {
		zlog.Logger.Error().Err(reqErr).Str("id", d.NotificationID).Msg("Redelivery enqueue failed, dead-lettering transport message")
		w.settle(d.Nack, "nack", d.NotificationID)
		return
	}
	w.settle(d.Ack, "ack", d.NotificationID)
}

// settle finalizes the broker delivery. A failure here usually means the
// channel died; the broker redelivers and processing is idempotent.
func (w *Worker) settle(fn func() error, op, id string) {
	if err := fn(); err != nil {
		zlog.Logger.Warn().Err(err).Str("op", op).Str("id", id).Msg("Failed to settle delivery")
	}
}

func (w *Worker) runSweep(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func laneFor(recipientID string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(recipientID))
	return int(h.Sum32() % uint32(lanes))
}
