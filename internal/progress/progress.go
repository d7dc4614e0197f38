// Package progress delivers ingestion progress events to per-session
// subscribers. Delivery is best-effort: a slow or missing subscriber never
// blocks the sender.
package progress

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Phase is the lifecycle stage an event reports.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseProgress Phase = "progress"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// Event is a single progress notification.
type Event struct {
	Phase         Phase   `json:"phase"`
	TotalFeatures int     `json:"totalFeatures"`
	InsertedCount int     `json:"insertedCount"`
	Percentage    float64 `json:"percentage"`
	Message       string  `json:"message,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Phase == PhaseComplete || e.Phase == PhaseError
}

// Reporter receives events from a running pipeline.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report implements Reporter.
func (f ReporterFunc) Report(ev Event) { f(ev) }

// Discard drops every event.
var Discard Reporter = ReporterFunc(func(Event) {})

// Options tunes subscriptions created by a Hub.
type Options struct {
	// Buffer is the per-subscription channel capacity.
	Buffer int
	// Rate caps intermediate events per second; 0 disables throttling.
	Rate float64
}

// Hub tracks one live subscription per session id.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*Subscription
	opts Options
	log  *zap.Logger
}

// NewHub returns an empty hub.
func NewHub(opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	return &Hub{
		subs: make(map[string]*Subscription),
		opts: opts,
		log:  zap.L().With(zap.String("component", "progress.hub")),
	}
}

// Subscription is the receiving end for one session.
type Subscription struct {
	id      string
	ch      chan Event
	limiter *rate.Limiter
	once    sync.Once
}

// ID returns the session id.
func (s *Subscription) ID() string { return s.id }

// Events yields delivered events. The channel is closed when the session
// is closed or replaced by a newer subscription.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Open registers a subscription for id, silently replacing any existing one.
func (h *Hub) Open(id string) *Subscription {
	sub := &Subscription{id: id, ch: make(chan Event, h.opts.Buffer)}
	if h.opts.Rate > 0 {
		sub.limiter = rate.NewLimiter(rate.Limit(h.opts.Rate), max(1, int(h.opts.Rate)))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.subs[id]; ok {
		old.close()
		h.log.Debug("replaced subscription", zap.String("session", id))
	}
	h.subs[id] = sub
	return sub
}

// Send delivers ev to the session's subscriber without blocking. It
// reports whether the event was queued. Unknown sessions are a no-op.
func (h *Hub) Send(id string, ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return false
	}
	// Only intermediate progress is throttled; start and terminal events
	// always get through the limiter.
	if ev.Phase == PhaseProgress && sub.limiter != nil && !sub.limiter.Allow() {
		return false
	}

	select {
	case sub.ch <- ev:
		return true
	default:
	}

	if !ev.Terminal() {
		h.log.Debug("dropped progress event", zap.String("session", id), zap.String("phase", string(ev.Phase)))
		return false
	}

	// Make room for the terminal event by discarding the oldest queued one.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- ev:
		return true
	default:
		return false
	}
}

// Close ends the session's subscription. Closing an unknown id is a no-op.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		sub.close()
		delete(h.subs, id)
	}
}

// Release closes sub if it is still the session's current subscription.
func (h *Hub) Release(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subs[sub.id]; ok && cur == sub {
		delete(h.subs, sub.id)
	}
	sub.close()
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Reporter returns a Reporter that sends to the given session.
func (h *Hub) Reporter(id string) Reporter {
	return ReporterFunc(func(ev Event) { h.Send(id, ev) })
}
