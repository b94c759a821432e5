/*
Package realtime owns the lifecycle of realtime client connections and pushes
server events to them.

Connection lifecycle events (connect, disconnect, broadcast) are serialized through a
single event-loop goroutine, which is the only writer of the presence registry and of
the set of live connections. Targeted delivery reads the registry directly from the
caller's goroutine and only enqueues onto the receiver's send queue, so it never
blocks on the network.
*/
package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/app/presence"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

const defaultEventBuffer = 256

// Close reasons sent to clients when the server terminates a connection.
const (
	ReasonSuperseded = "session replaced by a newer connection"
	ReasonShutdown   = "server shutting down"
)

type eventKind int

const (
	connectEvent eventKind = iota
	disconnectEvent
	broadcastEvent
)

type lifecycleEvent struct {
	kind   eventKind
	userID string
	handle presence.Handle
	frame  []byte
	done   chan struct{}
}

// Options tunes a Dispatcher.
type Options struct {
	// EvictSuperseded closes a connection when a newer one registers the same user id.
	// When false the superseded connection stays open but no longer receives targeted events.
	EvictSuperseded bool

	// EventBuffer is the capacity of the lifecycle event queue.
	EventBuffer int
}

// Dispatcher mediates between transport connections, the presence registry and the
// REST layer.
type Dispatcher struct {
	registry *presence.Registry

	// conns holds every live connection, registered or anonymous. Owned by run.
	conns map[presence.Handle]string

	events chan lifecycleEvent

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	evictSuperseded bool

	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher around registry and starts its event loop.
func NewDispatcher(registry *presence.Registry, opts Options) *Dispatcher {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	d := &Dispatcher{
		registry:        registry,
		conns:           make(map[presence.Handle]string),
		events:          make(chan lifecycleEvent, opts.EventBuffer),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		evictSuperseded: opts.EvictSuperseded,
		logger:          logx.Component("dispatcher"),
	}

	go d.run()

	return d
}

// Connect attaches a freshly accepted connection. A non-empty userID registers it in
// presence and rebroadcasts the online set; an empty userID leaves it anonymous: it
// receives broadcasts but is never a delivery target.
// Connect returns once the event loop has applied the change.
func (d *Dispatcher) Connect(userID string, h presence.Handle) {
	d.submit(lifecycleEvent{kind: connectEvent, userID: userID, handle: h})
}

// Disconnect detaches a closed connection and releases its presence entry if the entry
// still belongs to this connection.
func (d *Dispatcher) Disconnect(userID string, h presence.Handle) {
	d.submit(lifecycleEvent{kind: disconnectEvent, userID: userID, handle: h})
}

// BroadcastAll pushes (event, payload) to every live connection.
func (d *Dispatcher) BroadcastAll(event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event).Msg("dropping broadcast")
		return
	}

	d.submit(lifecycleEvent{kind: broadcastEvent, frame: frame})
}

// Deliver pushes (event, payload) to the connection registered for receiverID.
// It reports whether the receiver was connected. Queueing failures are swallowed:
// the caller's data is already durable and real-time delivery is best-effort.
func (d *Dispatcher) Deliver(receiverID, event string, payload any) bool {
	frame, err := Encode(event, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event).Msg("dropping delivery")
		return false
	}

	h, ok := d.registry.Lookup(receiverID)
	if !ok {
		metrics.RealtimeDeliveries.WithLabelValues(metrics.DeliveryOffline).Inc()
		return false
	}

	if err := h.Push(frame); err != nil {
		metrics.RealtimeDeliveries.WithLabelValues(metrics.DeliveryDropped).Inc()
		metrics.RealtimePushFailures.Inc()
		d.logger.Warn().Err(err).
			Str("receiver_id", receiverID).
			Str("event", event).
			Msg("push to registered connection failed")
		return true
	}

	metrics.RealtimeDeliveries.WithLabelValues(metrics.DeliveryDelivered).Inc()
	return true
}

// OnlineUsers returns the ids currently registered in presence.
func (d *Dispatcher) OnlineUsers() []string {
	return d.registry.Snapshot()
}

// Shutdown stops the event loop and closes every live connection. Later lifecycle
// calls return immediately.
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		d.logger.Info().Msg("shutting down dispatcher")
		close(d.stop)
	})
	<-d.done
}

// submit hands ev to the event loop and waits until it has been applied.
func (d *Dispatcher) submit(ev lifecycleEvent) {
	ev.done = make(chan struct{})

	select {
	case d.events <- ev:
	case <-d.stop:
		return
	}

	select {
	case <-ev.done:
	case <-d.done:
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	d.logger.Info().Msg("dispatcher loop started")

	for {
		select {
		case ev := <-d.events:
			d.apply(ev)
			close(ev.done)

		case <-d.stop:
			d.closeAll()
			d.logger.Info().Msg("dispatcher loop stopped")
			return
		}
	}
}

func (d *Dispatcher) apply(ev lifecycleEvent) {
	switch ev.kind {
	case connectEvent:
		d.onConnect(ev.userID, ev.handle)
	case disconnectEvent:
		d.onDisconnect(ev.userID, ev.handle)
	case broadcastEvent:
		d.fanOut(ev.frame)
	}
}

func (d *Dispatcher) onConnect(userID string, h presence.Handle) {
	d.conns[h] = userID
	metrics.RealtimeConnections.Set(float64(len(d.conns)))

	if userID == "" {
		d.logger.Debug().Int("connections", len(d.conns)).Msg("anonymous connection attached")
		d.pushOnlineUsers(h)
		return
	}

	previous, replaced := d.registry.Register(userID, h)
	if replaced && previous != h {
		d.logger.Warn().
			Str("user_id", userID).
			Bool("evict", d.evictSuperseded).
			Msg("user registered a second connection, previous one superseded")

		if d.evictSuperseded {
			delete(d.conns, previous)
			previous.Close(ReasonSuperseded)
		}
	}

	d.logger.Info().
		Str("user_id", userID).
		Int("online_users", d.registry.Len()).
		Msg("user connected")

	d.broadcastOnlineUsers()
}

func (d *Dispatcher) onDisconnect(userID string, h presence.Handle) {
	delete(d.conns, h)
	metrics.RealtimeConnections.Set(float64(len(d.conns)))

	if userID == "" {
		return
	}

	if !d.registry.Release(userID, h) {
		d.logger.Debug().Str("user_id", userID).Msg("ignoring disconnect of superseded connection")
		return
	}

	d.logger.Info().
		Str("user_id", userID).
		Int("online_users", d.registry.Len()).
		Msg("user disconnected")

	d.broadcastOnlineUsers()
}

func (d *Dispatcher) onlineUsersFrame() ([]byte, bool) {
	online := d.registry.Snapshot()
	metrics.PresenceOnlineUsers.Set(float64(len(online)))

	frame, err := Encode(EventOnlineUsers, online)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to encode online users")
		return nil, false
	}
	return frame, true
}

func (d *Dispatcher) broadcastOnlineUsers() {
	if frame, ok := d.onlineUsersFrame(); ok {
		d.fanOut(frame)
	}
}

func (d *Dispatcher) pushOnlineUsers(h presence.Handle) {
	if frame, ok := d.onlineUsersFrame(); ok {
		d.push(h, frame)
	}
}

func (d *Dispatcher) fanOut(frame []byte) {
	metrics.RealtimeBroadcasts.Inc()

	for h := range d.conns {
		d.push(h, frame)
	}
}

func (d *Dispatcher) push(h presence.Handle, frame []byte) {
	if err := h.Push(frame); err != nil {
		metrics.RealtimePushFailures.Inc()
		d.logger.Debug().Err(err).Str("user_id", d.conns[h]).Msg("push failed, waiting for disconnect")
	}
}

func (d *Dispatcher) closeAll() {
	for h, userID := range d.conns {
		h.Close(ReasonShutdown)
		if userID != "" {
			d.registry.Release(userID, h)
		}
	}

	clear(d.conns)
	metrics.RealtimeConnections.Set(0)
	metrics.PresenceOnlineUsers.Set(0)
}
