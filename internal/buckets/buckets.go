// Package buckets batches bridge invocation records per bridge and flushes
// them to the database
package buckets

import (
	"context"
	"sync"
	"time"

	"resbridge/internal/bridge"
	"resbridge/internal/database"
	"resbridge/internal/metrics"
	"resbridge/internal/shared"

	"go.uber.org/zap"
)

// SaveFunc persists one batch of invocations.
type SaveFunc func(ctx context.Context, rows []database.Invocation) error

// Journal implements bridge.Observer. Records are bucketed per bridge name;
// a bucket flushes BucketFlushInterval after its first record, or right away
// once it holds BucketMaxRecords.
type Journal struct {
	buckets       map[string]*bucket
	killedBuckets map[string]*bucket
	mu            sync.Mutex
	log           *zap.SugaredLogger
	save          SaveFunc
	wg            sync.WaitGroup

	flushInterval time.Duration
	retryWait     time.Duration
}

type bucket struct {
	name  string
	rows  []database.Invocation
	timer *time.Timer
}

var _ bridge.Observer = (*Journal)(nil)

func NewJournal(log *zap.SugaredLogger, save SaveFunc) *Journal {
	return &Journal{
		log:           log,
		save:          save,
		buckets:       map[string]*bucket{},
		killedBuckets: map[string]*bucket{},
		flushInterval: shared.BucketFlushInterval,
		retryWait:     5 * time.Second,
	}
}

// Observe never blocks on the database.
func (j *Journal) Observe(rec bridge.Record) {
	row := database.Invocation{
		Bridge:       rec.Bridge,
		Path:         rec.Path,
		Outcome:      rec.Outcome.String(),
		Status:       rec.Status,
		Bytes:        rec.Bytes,
		ResolutionMs: rec.Resolution.Milliseconds(),
		DurationMs:   rec.Duration.Milliseconds(),
		CreatedAt:    rec.At,
	}
	if rec.Err != nil {
		row.Error = rec.Err.Error()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	b, ok := j.buckets[rec.Bridge]
	if !ok {
		b = &bucket{name: rec.Bridge}
		j.buckets[rec.Bridge] = b
	}
	b.rows = append(b.rows, row)

	if len(b.rows) >= shared.BucketMaxRecords {
		if b.timer != nil {
			if !b.timer.Stop() {
				// already fired, its flush is waiting on mu
				return
			}
			j.wg.Done()
			b.timer = nil
		}
		j.flushAsync(b.name)
		return
	}
	if b.timer == nil {
		name := b.name
		j.wg.Add(1)
		b.timer = time.AfterFunc(j.flushInterval, func() {
			defer j.wg.Done()
			j.flushUntilDone(name)
		})
	}
}

func (j *Journal) flushAsync(name string) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.flushUntilDone(name)
	}()
}

func (j *Journal) flushUntilDone(name string) {
	retry := j.Flush(name)
	for retry != 0 {
		j.log.Warn("Flush requested retry, waiting...")
		time.Sleep(retry)
		retry = j.Flush(name)
	}
}

// Flush writes the bucket of name. It returns a non-zero delay when another
// flush of the same bucket is still running and the caller should retry.
func (j *Journal) Flush(name string) time.Duration {
	j.mu.Lock()
	b, ok := j.buckets[name]
	if !ok {
		j.mu.Unlock()
		return 0
	}
	if _, ok := j.killedBuckets[name]; ok {
		j.mu.Unlock()
		return shared.BucketRetryDelay
	}
	j.killedBuckets[name] = b
	delete(j.buckets, name)
	if b.timer != nil && b.timer.Stop() {
		j.wg.Done()
	}
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		delete(j.killedBuckets, name)
		j.mu.Unlock()
	}()

	var err error
	for attempt := range shared.MaxFlushRetries {
		err = j.save(context.Background(), b.rows)
		if err == nil {
			j.log.Infow("Flushed bucket", "bridge", name, "invocations", len(b.rows))
			return 0
		}
		j.log.Errorw("Failed to save invocations", "bridge", name, "attempt", attempt+1, "error", err)
		if attempt+1 < shared.MaxFlushRetries {
			time.Sleep(j.retryWait)
		}
	}
	j.log.Errorw("Dropping invocation bucket", "bridge", name, "invocations", len(b.rows), "error", err)
	metrics.JournalFlushErrors.WithLabelValues(name).Inc()
	return 0
}

// Shutdown stops pending timers and flushes every bucket.
func (j *Journal) Shutdown() {
	j.log.Info("Shutting down journal")
	j.mu.Lock()
	names := make([]string, 0, len(j.buckets))
	for name, b := range j.buckets {
		if b.timer != nil && b.timer.Stop() {
			j.wg.Done()
		}
		b.timer = nil
		names = append(names, name)
	}
	j.mu.Unlock()

	for _, name := range names {
		j.flushAsync(name)
	}
	j.wg.Wait()
}
