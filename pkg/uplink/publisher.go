package uplink

import (
	"sync"
	"sync/atomic"

	"github.com/haivivi/pcmlink/pkg/buffer"
)

// DefaultQueueSize is the number of events the publisher buffers before it
// starts dropping the oldest.
const DefaultQueueSize = 64

// Observer receives telemetry events.
type Observer interface {
	Observe(Telemetry)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Telemetry)

func (f ObserverFunc) Observe(t Telemetry) { f(t) }

type subscription struct {
	id  uint64
	obs Observer
}

// Publisher delivers telemetry to observers on its own goroutine. Publish
// never blocks: with no observers events are discarded, and when observers
// fall behind the oldest queued events are dropped. Events that are
// delivered arrive in the order they were published.
type Publisher struct {
	queue  *buffer.Ring[Telemetry]
	logger Logger
	done   chan struct{}

	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	any    atomic.Bool
}

// NewPublisher starts a publisher with the given queue capacity.
func NewPublisher(capacity int, logger Logger) *Publisher {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	p := &Publisher{
		queue:  buffer.RingN[Telemetry](capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Subscribe registers obs. The returned function removes it again.
func (p *Publisher) Subscribe(obs Observer) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscription{id: id, obs: obs})
	p.any.Store(true)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				break
			}
		}
		p.any.Store(len(p.subs) > 0)
	}
}

// Publish queues t for delivery.
func (p *Publisher) Publish(t Telemetry) {
	if !p.any.Load() {
		return
	}
	// The only error is a closed queue, which means nobody is listening.
	_, _ = p.queue.Add(t)
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.queue.Dropped()
}

// Close stops accepting events, delivers what is queued and waits for the
// dispatcher to exit.
func (p *Publisher) Close() error {
	p.queue.CloseWrite()
	<-p.done
	return nil
}

func (p *Publisher) dispatch() {
	defer close(p.done)
	for {
		t, err := p.queue.Next()
		if err != nil {
			return
		}
		p.mu.Lock()
		subs := p.subs
		p.mu.Unlock()
		for _, s := range subs {
			p.deliver(s.obs, t)
		}
	}
}

func (p *Publisher) deliver(obs Observer, t Telemetry) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorPrintf("observer panic: %v", r)
		}
	}()
	obs.Observe(t)
}
