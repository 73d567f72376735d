package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/registry"
)

// delivery is one queued message together with the recipients captured
// when it was queued.
type delivery struct {
	msg        Message
	recipients []Subscriber
}

// Dispatcher delivers registry changes to push subscribers.
//
// It implements registry.Listener. The registry calls it from its own
// goroutine, so OnChange and OnEvict only enqueue; the queue is unbounded
// and never blocks the caller.
type Dispatcher struct {
	config Config
	logger logger.Logger

	mu     sync.Mutex
	subs   map[string]map[string]Subscriber // path -> id -> subscriber
	queue  []delivery
	closed bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewDispatcher creates a Dispatcher and starts its delivery goroutine.
func NewDispatcher(cfg Config, log logger.Logger) *Dispatcher {
	d := &Dispatcher{
		config: cfg,
		logger: logger.Component(log, "dispatcher"),
		subs:   make(map[string]map[string]Subscriber),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go d.run()
	return d
}

// Subscribe adds sub to path. Subscribing the same id twice replaces the
// earlier subscriber.
func (d *Dispatcher) Subscribe(path string, sub Subscriber) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	byID, ok := d.subs[path]
	if !ok {
		byID = make(map[string]Subscriber)
		d.subs[path] = byID
	}
	byID[sub.ID()] = sub

	d.logger.Debug("subscriber added",
		"path", path,
		"subscriber", sub.ID(),
		"subscribers", len(byID))
	return nil
}

// Unsubscribe removes id from path and reports whether it was subscribed.
func (d *Dispatcher) Unsubscribe(path, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(path, id)
}

// UnsubscribeAll removes id from every path and returns the paths it left.
func (d *Dispatcher) UnsubscribeAll(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var left []string
	for path := range d.subs {
		if d.removeLocked(path, id) {
			left = append(left, path)
		}
	}
	sort.Strings(left)
	return left
}

// Subscribers returns the ids subscribed to path, sorted.
func (d *Dispatcher) Subscribers(path string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.subs[path]))
	for id := range d.subs[path] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnChange implements registry.Listener.
func (d *Dispatcher) OnChange(change registry.Change) {
	d.enqueue(change.Path, false, Message{
		Event:       EventChange,
		Path:        change.Path,
		Fingerprint: change.Fingerprint,
		Timestamp:   change.DetectedAt,
	})
}

// OnEvict implements registry.Listener. Subscribers of path are told the
// watch is gone and dropped.
func (d *Dispatcher) OnEvict(path string, reason registry.EvictReason) {
	d.enqueue(path, true, Message{
		Event:     EventUnwatched,
		Path:      path,
		Reason:    string(reason),
		Timestamp: time.Now(),
	})
}

// Close stops delivery. Queued messages that were not delivered yet are
// discarded.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		dropped := len(d.queue)
		d.queue = nil
		d.mu.Unlock()

		close(d.done)
		<-d.exited

		d.logger.Info("dispatcher closed", "dropped", dropped)
	})
	return nil
}

func (d *Dispatcher) enqueue(path string, drop bool, msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	byID := d.subs[path]
	if len(byID) == 0 {
		if drop {
			delete(d.subs, path)
		}
		d.mu.Unlock()
		return
	}

	recipients := make([]Subscriber, 0, len(byID))
	for _, sub := range byID {
		recipients = append(recipients, sub)
	}
	if drop {
		delete(d.subs, path)
	}
	d.queue = append(d.queue, delivery{msg: msg, recipients: recipients})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.exited)

	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			next, ok := d.pop()
			if !ok {
				break
			}
			d.deliver(next)

			select {
			case <-d.done:
				return
			default:
			}
		}
	}
}

func (d *Dispatcher) pop() (delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return delivery{}, false
	}
	next := d.queue[0]
	d.queue[0] = delivery{}
	d.queue = d.queue[1:]
	return next, true
}

// deliver sends one message to all its recipients concurrently and waits
// for every send before returning, which keeps messages for a path ordered.
func (d *Dispatcher) deliver(next delivery) {
	errs := make([]error, len(next.recipients))

	var wg sync.WaitGroup
	for i, sub := range next.recipients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sub.Send(next.msg)
		}()
	}
	wg.Wait()

	delivered := 0
	for i, sub := range next.recipients {
		if errs[i] == nil {
			delivered++
			continue
		}
		d.logger.Warn("push delivery failed, dropping subscriber",
			"path", next.msg.Path,
			"event", next.msg.Event,
			"subscriber", sub.ID(),
			"error", errs[i])
		d.dropSubscriber(sub)
	}

	d.logger.Debug("message delivered",
		"path", next.msg.Path,
		"event", next.msg.Event,
		"delivered", delivered,
		"failed", len(next.recipients)-delivered)

	if delivered > 0 && next.msg.Event == EventChange && d.config.OnDelivered != nil {
		d.config.OnDelivered(next.msg.Path)
	}
}

// dropSubscriber removes sub from every path, but only where the same
// subscriber instance is still registered.
func (d *Dispatcher) dropSubscriber(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, byID := range d.subs {
		if current, ok := byID[sub.ID()]; ok && current == sub {
			d.removeLocked(path, sub.ID())
		}
	}
}

func (d *Dispatcher) removeLocked(path, id string) bool {
	byID, ok := d.subs[path]
	if !ok {
		return false
	}
	if _, ok := byID[id]; !ok {
		return false
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(d.subs, path)
	}
	return true
}
