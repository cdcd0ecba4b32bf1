package chatserver

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Submit after the pool shut down.
var ErrPoolStopped = errors.New("shard pool stopped")

type shardKey struct{}

// WithShard tags ctx with the shard a task is running on.
func WithShard(ctx context.Context, shard int) context.Context {
	return context.WithValue(ctx, shardKey{}, shard)
}

// ShardFromContext returns the shard tag set by WithShard.
func ShardFromContext(ctx context.Context) (int, bool) {
	shard, ok := ctx.Value(shardKey{}).(int)
	return shard, ok
}

// ShardPool is a fixed set of worker goroutines. Every connection is
// pinned to one shard by its id, and all of its tasks run there in
// submission order, which serializes request handling per connection
// without a lock.
type ShardPool struct {
	logger   *zap.Logger
	queues   []chan func(ctx context.Context)
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewShardPool creates a pool with the given number of shards and
// per-shard queue depth.
//
// Precondition: shards and depth must be positive; logger must be non-nil.
func NewShardPool(shards, depth int, logger *zap.Logger) *ShardPool {
	p := &ShardPool{
		logger: logger,
		queues: make([]chan func(ctx context.Context), shards),
		done:   make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(ctx context.Context), depth)
	}
	return p
}

// Start launches the shard workers and blocks until Stop is called and
// every worker has drained, satisfying the server.Service contract.
func (p *ShardPool) Start() error {
	for i, queue := range p.queues {
		p.wg.Add(1)
		go p.run(i, queue)
	}
	p.wg.Wait()
	return nil
}

// Stop signals the workers to drain their queued tasks and exit.
func (p *ShardPool) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// ShardFor returns the shard a connection id is pinned to.
func (p *ShardPool) ShardFor(connID string) int {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Submit enqueues a task on the shard owning connID. It blocks when the
// shard's queue is full, applying backpressure to the submitting read
// loop.
func (p *ShardPool) Submit(connID string, task func(ctx context.Context)) error {
	select {
	case p.queues[p.ShardFor(connID)] <- task:
		return nil
	case <-p.done:
		return ErrPoolStopped
	}
}

func (p *ShardPool) run(shard int, queue chan func(ctx context.Context)) {
	defer p.wg.Done()
	ctx := WithShard(context.Background(), shard)
	for {
		select {
		case task := <-queue:
			task(ctx)
		case <-p.done:
			// Drain tasks accepted before the stop signal.
			for {
				select {
				case task := <-queue:
					task(ctx)
				default:
					p.logger.Debug("shard drained", zap.Int("shard", shard))
					return
				}
			}
		}
	}
}
