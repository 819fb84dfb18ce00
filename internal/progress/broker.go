package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSubscriberBuffer = 16
	dropLogInterval         = 5 * time.Second
)

// Broker fans events out to per-job subscribers. Publish never blocks; a
// subscriber that cannot keep up loses events, which is acceptable because
// the result store remains the source of truth.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan Event
	nextID int
	closed bool

	buffer      int
	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
}

// NewBroker initializes a Broker ready to accept subscriptions.
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:        make(map[string]map[int]chan Event),
		buffer:      defaultSubscriberBuffer,
		logger:      logger,
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
}

// Subscribe registers for a job's event stream. The returned cancel func is
// idempotent and must be called when the subscriber is done. The channel is
// closed after a terminal event or on cancel.
func (b *Broker) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan Event)
	}
	b.subs[jobID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[jobID]; ok {
				if _, live := set[id]; live {
					delete(set, id)
					close(ch)
					if len(set) == 0 {
						delete(b.subs, jobID)
					}
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of its job. Invalid events are
// discarded. Full subscriber buffers drop the event with a rate-limited
// warning. Terminal events close and remove the job's subscriptions.
func (b *Broker) Publish(evt Event) {
	if b == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	set := b.subs[evt.JobID]
	for _, ch := range set {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			if b.dropLimiter.Allow(time.Now()) {
				count := b.dropped.Swap(0)
				b.logger.Warn("progress events dropped due to backpressure",
					zap.Int64("dropped", count))
			}
		}
	}
	if evt.Terminal() && set != nil {
		for _, ch := range set {
			close(ch)
		}
		delete(b.subs, evt.JobID)
	}
}

// Close shuts the broker down and closes every live subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for jobID, set := range b.subs {
		for _, ch := range set {
			close(ch)
		}
		delete(b.subs, jobID)
	}
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
