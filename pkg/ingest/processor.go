package ingest

import (
	"hash/fnv"
	"sync"
	"time"

	"cardstate/pkg/logger"
	"cardstate/pkg/store"
	"cardstate/pkg/telemetry"
)

const defaultShards = 8

// Processor drains the queue and applies events through the reducers.
// Events are sharded by their routing scope (Op.CardID) onto a fixed set
// of workers, so events addressing the same entity are always applied by
// the same worker, one at a time, in arrival order.
type Processor struct {
	q      *Queue
	shards []chan *Item

	wg       sync.WaitGroup
	stopOnce sync.Once
	monQuit  chan struct{}
}

// NewProcessor builds a processor over q with the given shard count.
func NewProcessor(q *Queue, shardCount int) *Processor {
	if shardCount <= 0 {
		shardCount = defaultShards
	}
	p := &Processor{q: q, monQuit: make(chan struct{})}
	p.shards = make([]chan *Item, shardCount)
	for i := range p.shards {
		p.shards[i] = make(chan *Item, 256)
	}
	return p
}

// Start launches the dispatcher, the shard workers and the depth monitor.
func (p *Processor) Start() {
	for i := range p.shards {
		p.wg.Add(1)
		go p.runWorker(p.shards[i])
	}
	p.wg.Add(1)
	go p.runDispatcher()
	p.wg.Add(1)
	go p.runMonitor()
	logger.Info("ingest_processor_started", "shards", len(p.shards))
}

// Stop closes the queue, lets the dispatcher hand out everything already
// accepted, and waits for the workers and the monitor to finish. Callers
// may close the store once Stop returns.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.q.Close()
		close(p.monQuit)
		p.wg.Wait()
		logger.Info("ingest_processor_stopped")
	})
}

func (p *Processor) runDispatcher() {
	defer p.wg.Done()
	for it := range p.q.Out() {
		p.shards[p.shardFor(it.Op)] <- it
	}
	for _, ch := range p.shards {
		close(ch)
	}
}

func (p *Processor) runWorker(ch <-chan *Item) {
	defer p.wg.Done()
	for it := range ch {
		p.process(it)
	}
}

func (p *Processor) process(it *Item) {
	defer it.Done()
	op := it.Op
	start := time.Now()
	outcome, err := Apply(op)
	telemetry.ApplyDuration.Observe(time.Since(start).Seconds())
	telemetry.PatchOutcomes.WithLabelValues(outcome).Inc()
	if err != nil {
		logger.Error("event_apply_failed",
			"kind", string(op.Kind), "scope", op.CardID, "id", op.ID, "error", err)
		return
	}
	logger.Debug("event_applied",
		"kind", string(op.Kind), "scope", op.CardID, "id", op.ID, "outcome", outcome)
}

// shardFor hashes the routing scope so same-entity events serialize on one
// worker. Ops with an empty scope fall back to the entity id.
func (p *Processor) shardFor(op *Op) int {
	key := op.CardID
	if key == "" {
		key = op.ID
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}

// runMonitor periodically publishes queue depth and watches storage health
// for compaction pressure.
func (p *Processor) runMonitor() {
	defer p.wg.Done()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			telemetry.QueueDepth.Set(float64(p.q.Len()))
			telemetry.QueueDropped.Set(float64(p.q.Dropped()))
			if m := store.GetPebbleMetrics(); m.L0Files > 64 {
				logger.Warn("storage_compaction_pressure",
					"l0_files", m.L0Files, "l0_bytes", m.L0Bytes, "backlog", m.CompactionBacklog)
			}
		case <-p.monQuit:
			return
		}
	}
}
