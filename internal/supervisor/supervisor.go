// Package supervisor owns the lifecycle of messaging connections: it keeps
// each transport link alive with exponential-backoff reconnects, admits
// inbound events through a bounded queue, and serializes processing per
// counterpart while different counterparts run concurrently.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/zapagent/zapagent/internal/engine"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// ErrAlreadyRunning is returned when starting a connection twice.
var ErrAlreadyRunning = errors.New("supervisor: connection already running")

// ErrNotRunning is returned when stopping a connection that is not up.
var ErrNotRunning = errors.New("supervisor: connection not running")

// Event is one inbound message delivered by the transport.
type Event struct {
	Counterpart string
	ContentType model.ContentType
	Text        string
	Media       []byte
	MediaRef    string
	MIME        string
	Timestamp   time.Time
}

// Transport is the messaging-side port. The host application brings the
// actual protocol implementation.
//
// Connect establishes the link for one connection and blocks until it drops.
// Implementations call onUp exactly once when the link is actually up, and
// deliver inbound messages through handler from then on; a Connect stuck
// dialing never calls onUp. The supervisor calls Connect again (with backoff)
// after every drop; the connection's pairing material travels on the record,
// so implementations must not require re-pairing between calls.
type Transport interface {
	Connect(ctx context.Context, conn model.Connection, onUp func(), handler func(Event)) error
	Disconnect(connectionID string) error
	Send(ctx context.Context, connectionID, counterpart, text string) error
}

// Handler processes one admitted message. *engine.Engine satisfies this.
type Handler interface {
	Handle(ctx context.Context, msg engine.Message) (string, error)
}

// Config tunes queue sizing and reconnect behavior.
type Config struct {
	// InboundBuffer is the bounded admission queue size per connection.
	InboundBuffer int
	// RequeueMax is how many delayed retries a full queue gets before the
	// event is dropped.
	RequeueMax int
	// RequeueDelay is the pause between requeue attempts.
	RequeueDelay time.Duration
	// ReconnectInitialInterval seeds the reconnect backoff.
	ReconnectInitialInterval time.Duration
	// ReconnectMaxInterval caps the backoff between reconnect attempts.
	ReconnectMaxInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 64
	}
	if c.RequeueMax < 0 {
		c.RequeueMax = 0
	}
	if c.RequeueDelay <= 0 {
		c.RequeueDelay = 250 * time.Millisecond
	}
	if c.ReconnectInitialInterval <= 0 {
		c.ReconnectInitialInterval = time.Second
	}
	if c.ReconnectMaxInterval <= 0 {
		c.ReconnectMaxInterval = 5 * time.Minute
	}
	return c
}

// Supervisor runs one runtime per started connection.
type Supervisor struct {
	transport Transport
	handler   Handler
	cfg       Config
	logger    log.Logger

	mu       sync.Mutex
	runtimes map[string]*runtime
}

// New creates a supervisor. Connections are started individually.
func New(transport Transport, handler Handler, cfg Config, logger log.Logger) *Supervisor {
	return &Supervisor{
		transport: transport,
		handler:   handler,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "supervisor"),
		runtimes:  make(map[string]*runtime),
	}
}

// Start brings one connection up. The call returns immediately; connecting
// and reconnecting happen in the background until Stop.
func (s *Supervisor) Start(ctx context.Context, conn model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runtimes[conn.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, conn.ID)
	}

	rtCtx, cancel := context.WithCancel(ctx)
	rt := &runtime{
		conn:    conn,
		ctx:     rtCtx,
		cancel:  cancel,
		inbound: make(chan Event, s.cfg.InboundBuffer),
		workers: make(map[string]*worker),
		logger:  s.logger.With("connection", conn.ID),
	}
	rt.status.Store(string(model.StatusConnecting))
	s.runtimes[conn.ID] = rt

	rt.wg.Add(2)
	go s.connectionLoop(rt)
	go s.dispatchLoop(rt)

	return nil
}

// Stop tears one connection down, cancelling in-flight runs, and waits for
// its goroutines to exit.
func (s *Supervisor) Stop(connectionID string) error {
	s.mu.Lock()
	rt, ok := s.runtimes[connectionID]
	if ok {
		delete(s.runtimes, connectionID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, connectionID)
	}

	rt.cancel()
	if err := s.transport.Disconnect(connectionID); err != nil {
		rt.logger.Warn("transport disconnect failed", "error", err)
	}
	rt.wg.Wait()
	rt.status.Store(string(model.StatusDisconnected))
	return nil
}

// StopAll tears every running connection down concurrently. Each Stop waits
// for that connection's workers to drain, so stopping a large fleet serially
// would pay every drain back to back.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.runtimes))
	for id := range s.runtimes {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := s.Stop(id); err != nil && !errors.Is(err, ErrNotRunning) {
				s.logger.Warn("stop failed", "connection", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Status reports the lifecycle state of one connection.
func (s *Supervisor) Status(connectionID string) model.ConnectionStatus {
	s.mu.Lock()
	rt, ok := s.runtimes[connectionID]
	s.mu.Unlock()
	if !ok {
		return model.StatusDisconnected
	}
	return model.ConnectionStatus(rt.status.Load().(string))
}

// Dropped reports how many inbound events were dropped after requeueing
// failed for one connection.
func (s *Supervisor) Dropped(connectionID string) int64 {
	s.mu.Lock()
	rt, ok := s.runtimes[connectionID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return rt.dropped.Load()
}

// runtime is the per-connection goroutine set and queue state.
type runtime struct {
	conn   model.Connection
	ctx    context.Context
	cancel context.CancelFunc
	logger log.Logger

	inbound chan Event
	dropped atomic.Int64
	status  atomic.Value

	wg sync.WaitGroup

	workerMu sync.Mutex
	workers  map[string]*worker
}

// connectionLoop keeps the transport link alive until the runtime stops.
func (s *Supervisor) connectionLoop(rt *runtime) {
	defer rt.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectInitialInterval
	bo.MaxInterval = s.cfg.ReconnectMaxInterval
	bo.MaxElapsedTime = 0

	op := func() error {
		started := time.Now()

		// Connecting until the transport confirms the link is up.
		rt.status.Store(string(model.StatusConnecting))
		onUp := func() {
			rt.status.Store(string(model.StatusConnected))
		}
		err := s.transport.Connect(rt.ctx, rt.conn, onUp, s.admit(rt))

		if rt.ctx.Err() != nil {
			return backoff.Permanent(rt.ctx.Err())
		}

		rt.status.Store(string(model.StatusError))
		if err == nil {
			err = errors.New("transport closed the link")
		}
		rt.logger.Warn("connection dropped, reconnecting", "error", err,
			"uptime", time.Since(started).Round(time.Millisecond))

		// A link that stayed up for a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			bo.Reset()
		}
		return err
	}

	_ = backoff.Retry(op, backoff.WithContext(bo, rt.ctx))
	rt.status.Store(string(model.StatusDisconnected))
}

// admit returns the transport callback feeding the bounded inbound queue.
// A full queue gets capped delayed retries; after that the event is dropped
// with an error log and a counter bump.
func (s *Supervisor) admit(rt *runtime) func(Event) {
	return func(ev Event) {
		select {
		case rt.inbound <- ev:
			return
		case <-rt.ctx.Done():
			return
		default:
		}

		for attempt := 1; attempt <= s.cfg.RequeueMax; attempt++ {
			timer := time.NewTimer(s.cfg.RequeueDelay)
			select {
			case <-rt.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			select {
			case rt.inbound <- ev:
				rt.logger.Warn("inbound queue was full, admitted after retry",
					"counterpart", ev.Counterpart, "attempt", attempt)
				return
			default:
			}
		}

		rt.dropped.Add(1)
		rt.logger.Error("inbound queue full, dropping message",
			"counterpart", ev.Counterpart,
			"attempts", s.cfg.RequeueMax,
			"dropped_total", rt.dropped.Load())
	}
}

// dispatchLoop routes admitted events to per-counterpart workers.
func (s *Supervisor) dispatchLoop(rt *runtime) {
	defer rt.wg.Done()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case ev := <-rt.inbound:
			s.workerFor(rt, ev.Counterpart).push(ev)
		}
	}
}

// workerFor finds or spawns the FIFO worker for one counterpart.
func (s *Supervisor) workerFor(rt *runtime, counterpart string) *worker {
	rt.workerMu.Lock()
	defer rt.workerMu.Unlock()

	w, ok := rt.workers[counterpart]
	if !ok {
		w = &worker{wake: make(chan struct{}, 1)}
		rt.workers[counterpart] = w
		rt.wg.Add(1)
		go s.workerLoop(rt, counterpart, w)
	}
	return w
}

// workerLoop drains one counterpart's queue in admission order. One event
// finishes completely, reply sent included, before the next starts.
func (s *Supervisor) workerLoop(rt *runtime, counterpart string, w *worker) {
	defer rt.wg.Done()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-w.wake:
		}

		for {
			ev, ok := w.pop()
			if !ok {
				break
			}
			s.process(rt, counterpart, ev)
			if rt.ctx.Err() != nil {
				return
			}
		}
	}
}

// process runs one event through the engine and sends the reply.
func (s *Supervisor) process(rt *runtime, counterpart string, ev Event) {
	reply, err := s.handler.Handle(rt.ctx, engine.Message{
		ConnectionID: rt.conn.ID,
		Counterpart:  counterpart,
		ContentType:  ev.ContentType,
		Text:         ev.Text,
		Media:        ev.Media,
		MediaRef:     ev.MediaRef,
		MIME:         ev.MIME,
		Timestamp:    ev.Timestamp,
	})
	if err != nil {
		rt.logger.Error("message run failed", "counterpart", counterpart, "error", err)
		return
	}
	if reply == "" {
		return
	}

	if err := s.transport.Send(rt.ctx, rt.conn.ID, counterpart, reply); err != nil {
		rt.logger.Error("reply send failed", "counterpart", counterpart, "error", err)
	}
}

// worker is one counterpart's FIFO queue.
type worker struct {
	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
}

func (w *worker) push(ev Event) {
	w.mu.Lock()
	w.queue = append(w.queue, ev)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) pop() (Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Event{}, false
	}
	ev := w.queue[0]
	w.queue = w.queue[1:]
	return ev, true
}
