package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Recorder accepts delivery outcomes without ever blocking or failing the
// delivery path. Outcomes go into a bounded in-memory channel drained by a
// background goroutine; a full buffer drops the row with a log line, and
// store write failures are logged, never propagated.
type Recorder struct {
	store  MetricsStore
	buf    chan *DeliveryOutcome
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewRecorder creates a metrics recorder with the given buffer capacity and
// starts its drain goroutine.
func NewRecorder(store MetricsStore, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	r := &Recorder{
		store:  store,
		buf:    make(chan *DeliveryOutcome, bufferSize),
		closed: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues one outcome row. Fire-and-forget: if the buffer is full
// the row is dropped rather than stalling delivery.
func (r *Recorder) Record(outcome *DeliveryOutcome) {
	select {
	case <-r.closed:
		slog.Warn("metrics recorder closed, dropping outcome", "dose_id", outcome.DoseID)
	case r.buf <- outcome:
	default:
		slog.Warn("metrics buffer full, dropping outcome",
			"dose_id", outcome.DoseID,
			"channel", outcome.Channel,
			"status", outcome.Status,
		)
	}
}

// Close stops accepting outcomes and waits for buffered rows to be written.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.closed)
	})
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case outcome := <-r.buf:
			r.write(outcome)
		case <-r.closed:
			// Flush whatever is still buffered, then exit.
			for {
				select {
				case outcome := <-r.buf:
					r.write(outcome)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(outcome *DeliveryOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.Append(ctx, outcome); err != nil {
		slog.Error("metrics write failed",
			"dose_id", outcome.DoseID,
			"channel", outcome.Channel,
			"error", err,
		)
	}
}

// ComputeStats aggregates one user's outcome rows over the trailing window.
// The success rate counts sent and delivered rows against the total,
// formatted to one decimal percent, "0" when no rows exist.
func ComputeStats(ctx context.Context, store MetricsStore, userID string, windowDays int) (*Stats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	stats, err := store.Aggregate(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating delivery stats: %w", err)
	}

	if stats.ByChannel == nil {
		stats.ByChannel = map[Channel]int{}
	}
	stats.SuccessRate = formatSuccessRate(stats.Sent+stats.Delivered, stats.Total)
	return stats, nil
}

func formatSuccessRate(successes, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%.1f", float64(successes)/float64(total)*100)
}
