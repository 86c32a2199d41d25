package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"cardstate/pkg/events"
)

// Op is a lightweight in-memory representation of one event destined for
// the reducer pipeline. Kind is the explicit dispatch key set by the
// enqueueing code; the processor never probes payloads to decide dispatch.
// Payload may be backed by a pooled ByteBuffer; consumers must call
// Item.Done() when finished.
type Op struct {
	Kind   events.Kind
	CardID string
	// ID is the target entity id. For creates it is the server-assigned id
	// returned to the client; for patches it addresses the entity.
	ID string
	// Payload holds the raw event JSON (may be nil).
	Payload []byte
	// TS is an optional client/server timestamp (nanoseconds).
	TS int64
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the queue.
	EnqSeq uint64
	// Extras holds small metadata extracted from HTTP request headers
	// (e.g. actor, account, request id). It is optional.
	Extras map[string]string
}

// Item wraps an Op and owns a pooled ByteBuffer if one was used. Consumers
// MUST call Done() exactly once after processing the item to return pooled
// resources.
type Item struct {
	Op *Op

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

// Done releases internal pooled resources (buffer + op) back to the pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.q != nil {
			atomic.AddInt64(&it.q.inFlight, -1)
			it.q = nil
		}
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		// clear slice header to avoid retention
		if it.Op != nil {
			it.Op.Payload = nil
			it.Op.Extras = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer that is returned to the
// pool. Bigger buffers are dropped so resident memory stays bounded.
var maxPooledBuffer = 256 * 1024 // 256 KiB

// SetMaxPooledBuffer overrides the pooled buffer retention cap. Call at
// startup before the queue is in use.
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// ErrQueueClosed is returned when enqueueing after the queue has closed.
var ErrQueueClosed = errors.New("ingest queue closed")

const defaultQueueCapacity = 64 * 1024
const fallbackQueueCapacity = 1024

// instrumentation counters (package-local)
var (
	enqueueTotal     uint64
	enqueueFailTotal uint64
	enqSeq           uint64
)

// Queue is a bounded in-memory queue the API layer enqueues events into.
// It is safe for concurrent producers; the processor is the single
// consumer of Out().
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
	closed   int32

	enqWg     sync.WaitGroup
	closeOnce sync.Once
	inFlight  int64
}

// NewQueue creates a bounded Queue of given capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackQueueCapacity
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// DefaultQueue is the global queue used by the mutation handlers. It can
// be replaced at startup via SetDefaultQueue.
var DefaultQueue = NewQueue(defaultQueueCapacity)

// SetDefaultQueue replaces the package default queue.
func SetDefaultQueue(q *Queue) {
	if q != nil {
		DefaultQueue = q
	}
}

// Out exposes Items for the consumer (do not close).
func (q *Queue) Out() <-chan *Item { return q.ch }

// TryEnqueue enqueues an Op without blocking; returns ErrQueueFull if full.
func (q *Queue) TryEnqueue(op *Op) error {
	atomic.AddUint64(&enqueueTotal, 1)

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	it := q.newItem(op)
	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		return nil
	default:
		it.q = nil
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueFull
	}
}

// Enqueue blocks until op is enqueued or ctx is cancelled.
func (q *Queue) Enqueue(ctx context.Context, op *Op) error {
	atomic.AddUint64(&enqueueTotal, 1)

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	it := q.newItem(op)
	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		return nil
	case <-ctx.Done():
		it.q = nil
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ctx.Err()
	}
}

// newItem copies op into pooled storage.
func (q *Queue) newItem(op *Op) *Item {
	newOp := opPool.Get().(*Op)
	*newOp = *op
	// shallow copy Extras so callers can reuse their map
	if op.Extras != nil {
		newMap := make(map[string]string, len(op.Extras))
		for k, v := range op.Extras {
			newMap[k] = v
		}
		newOp.Extras = newMap
	}
	newOp.EnqSeq = atomic.AddUint64(&enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(op.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], op.Payload...)
		newOp.Payload = bb.B[:len(op.Payload)]
	}
	it := itemPool.Get().(*Item)
	*it = Item{Op: newOp, buf: bb, q: q}
	return it
}

// EnqueueOp constructs an Op with Extras and enqueues it (non-blocking).
func (q *Queue) EnqueueOp(kind events.Kind, cardID, id string, payload []byte, ts int64, extras map[string]string) error {
	return q.TryEnqueue(&Op{Kind: kind, CardID: cardID, ID: id, Payload: payload, TS: ts, Extras: extras})
}

// Close marks the queue closed for producers, waits out in-progress
// enqueues and closes the channel. Items still queued are left for the
// consumer to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		q.enqWg.Wait()
		close(q.ch)
	})
}

// CloseAndDrain closes the queue and discards remaining items, releasing
// their pooled resources. Use when no consumer is running.
func (q *Queue) CloseAndDrain() {
	q.Close()
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the current number of items in the queue.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity of the queue.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns the number of operations dropped due to a full queue or
// context cancellations during enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// EnqueuedTotal returns total attempted enqueues.
func (q *Queue) EnqueuedTotal() uint64 { return atomic.LoadUint64(&enqueueTotal) }

// FailedTotal returns total enqueue failures.
func (q *Queue) FailedTotal() uint64 { return atomic.LoadUint64(&enqueueFailTotal) }
