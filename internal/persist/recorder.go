package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/infinity/internal/core/engine"
	"go.uber.org/zap"
)

// BatchWriter stores telemetry batches. *TickRepo is the production one.
type BatchWriter interface {
	InsertBatch(ctx context.Context, samples []TickSample) error
}

// Recorder buffers tick samples on the tick goroutine and hands full batches
// to a background writer, so a slow database never stalls the tick loop.
type Recorder struct {
	w       BatchWriter
	log     *zap.Logger
	run     uuid.UUID
	every   int
	buf     []TickSample
	batches chan []TickSample
	done    chan struct{}
	mu      sync.Mutex // guards closed and sends on batches
	closed  bool
	written atomic.Int64
	dropped atomic.Int64
}

const (
	pendingBatches = 4
	writeTimeout   = 5 * time.Second
)

func NewRecorder(w BatchWriter, every int, log *zap.Logger) *Recorder {
	if every < 1 {
		every = 1
	}
	r := &Recorder{
		w:       w,
		log:     log,
		run:     uuid.New(),
		every:   every,
		buf:     make([]TickSample, 0, every),
		batches: make(chan []TickSample, pendingBatches),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Run identifies this process's samples.
func (r *Recorder) Run() uuid.UUID { return r.run }

func (r *Recorder) Written() int64 { return r.written.Load() }
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Record buffers one tick. Samples recorded after Close are dropped.
func (r *Recorder) Record(s engine.TickStats, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	r.buf = append(r.buf, SampleOf(r.run, s, failed))
	if len(r.buf) < r.every {
		return
	}
	batch := r.buf
	r.buf = make([]TickSample, 0, r.every)
	select {
	case r.batches <- batch:
	default:
		r.dropped.Add(int64(len(batch)))
		r.log.Warn("telemetry writer behind, batch dropped", zap.Int("samples", len(batch)))
	}
}

// Close hands over the partial batch and waits for the writer to drain, or
// for ctx to end. Later calls only wait.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if len(r.buf) > 0 {
			select {
			case r.batches <- r.buf:
			case <-ctx.Done():
				r.dropped.Add(int64(len(r.buf)))
			}
			r.buf = nil
		}
		close(r.batches)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for batch := range r.batches {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.w.InsertBatch(ctx, batch)
		cancel()
		if err != nil {
			r.dropped.Add(int64(len(batch)))
			r.log.Error("telemetry write failed", zap.Int("samples", len(batch)), zap.Error(err))
			continue
		}
		r.written.Add(int64(len(batch)))
	}
}
