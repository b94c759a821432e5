package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/presence"
	"dmchat/internal/pkg/metrics"
)

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// recordingHandle is an in-memory presence.Handle that keeps every pushed frame.
type recordingHandle struct {
	mu      sync.Mutex
	frames  []receivedFrame
	closed  bool
	reason  string
	pushErr error
}

func (h *recordingHandle) Push(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pushErr != nil {
		return h.pushErr
	}

	var f receivedFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	h.frames = append(h.frames, f)
	return nil
}

func (h *recordingHandle) Close(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.reason = reason
}

func (h *recordingHandle) snapshot() []receivedFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]receivedFrame(nil), h.frames...)
}

func (h *recordingHandle) events(name string) []receivedFrame {
	var out []receivedFrame
	for _, f := range h.snapshot() {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func (h *recordingHandle) lastOnline(t *testing.T) []string {
	t.Helper()

	frames := h.events(EventOnlineUsers)
	require.NotEmpty(t, frames, "no %s frame received", EventOnlineUsers)

	var ids []string
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &ids))
	return ids
}

func (h *recordingHandle) isClosed() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed, h.reason
}

func newTestDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()

	d := NewDispatcher(presence.NewRegistry(), opts)
	t.Cleanup(d.Shutdown)
	return d
}

type testMessage struct {
	ID         string `json:"_id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

func TestDispatcher_ConnectBroadcastsOnlineSet(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	hA, hB := &recordingHandle{}, &recordingHandle{}

	d.Connect("A", hA)
	assert.Equal(t, []string{"A"}, hA.lastOnline(t))

	d.Connect("B", hB)
	assert.ElementsMatch(t, []string{"A", "B"}, hA.lastOnline(t))
	assert.ElementsMatch(t, []string{"A", "B"}, hB.lastOnline(t))
	assert.ElementsMatch(t, []string{"A", "B"}, d.OnlineUsers())
}

func TestDispatcher_AnonymousConnection(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	anon := &recordingHandle{}
	hA := &recordingHandle{}

	d.Connect("", anon)
	assert.Empty(t, anon.lastOnline(t), "anonymous client learns the current (empty) online set")
	assert.Empty(t, d.OnlineUsers(), "anonymous connections are not registered")

	d.Connect("A", hA)
	assert.Equal(t, []string{"A"}, anon.lastOnline(t), "anonymous connections still receive broadcasts")

	assert.False(t, d.Deliver("", EventNewMessage, testMessage{ID: "m1"}))

	d.Disconnect("", anon)
	assert.Equal(t, []string{"A"}, d.OnlineUsers())
	assert.Len(t, hA.events(EventOnlineUsers), 1, "anonymous disconnect does not change membership")
}

func TestDispatcher_DeliverOnlyToConnectedReceiver(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	hB := &recordingHandle{}
	d.Connect("B", hB)

	first := testMessage{ID: "m1", SenderID: "A", ReceiverID: "B", Text: "hi"}
	second := testMessage{ID: "m2", SenderID: "A", ReceiverID: "B", Text: "there"}

	assert.True(t, d.Deliver("B", EventNewMessage, first))
	assert.True(t, d.Deliver("B", EventNewMessage, second))
	assert.False(t, d.Deliver("C", EventNewMessage, first))

	got := hB.events(EventNewMessage)
	require.Len(t, got, 2)

	var m1, m2 testMessage
	require.NoError(t, json.Unmarshal(got[0].Data, &m1))
	require.NoError(t, json.Unmarshal(got[1].Data, &m2))
	assert.Equal(t, first, m1)
	assert.Equal(t, second, m2, "pushes keep send order per connection")
}

func TestDispatcher_DeliverSwallowsPushFailure(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	broken := &recordingHandle{}
	d.Connect("B", broken)

	broken.mu.Lock()
	broken.pushErr = ErrSendQueueFull
	broken.mu.Unlock()

	assert.True(t, d.Deliver("B", EventNewMessage, testMessage{ID: "m1"}))
	assert.Equal(t, []string{"B"}, d.OnlineUsers(), "registry is only corrected by the disconnect signal")
}

func TestDispatcher_SecondConnectionReplacesFirst(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	old, current := &recordingHandle{}, &recordingHandle{}

	d.Connect("A", old)
	d.Connect("A", current)

	require.True(t, d.Deliver("A", EventNewMessage, testMessage{ID: "m1"}))
	assert.Empty(t, old.events(EventNewMessage))
	assert.Len(t, current.events(EventNewMessage), 1)

	closed, _ := old.isClosed()
	assert.False(t, closed, "superseded connection is left open by default")
	assert.Equal(t, []string{"A"}, d.OnlineUsers())

	d.Disconnect("A", old)
	assert.Equal(t, []string{"A"}, d.OnlineUsers(), "superseded disconnect keeps the newer entry")
	assert.True(t, d.Deliver("A", EventNewMessage, testMessage{ID: "m2"}))

	d.Disconnect("A", current)
	assert.Empty(t, d.OnlineUsers())
}

func TestDispatcher_EvictSuperseded(t *testing.T) {
	d := newTestDispatcher(t, Options{EvictSuperseded: true})
	old, current := &recordingHandle{}, &recordingHandle{}

	d.Connect("A", old)
	d.Connect("A", current)

	closed, reason := old.isClosed()
	assert.True(t, closed)
	assert.Equal(t, ReasonSuperseded, reason)

	before := len(old.snapshot())
	d.BroadcastAll(EventOnlineUsers, []string{"A"})
	assert.Len(t, old.snapshot(), before, "evicted connection no longer receives broadcasts")
}

func TestDispatcher_BroadcastExcludesDisconnected(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	handles := map[string]*recordingHandle{}
	for _, id := range []string{"A", "B", "C", "D"} {
		handles[id] = &recordingHandle{}
		d.Connect(id, handles[id])
	}

	d.Disconnect("B", handles["B"])
	d.Disconnect("D", handles["D"])

	for _, id := range []string{"A", "C"} {
		assert.ElementsMatch(t, []string{"A", "C"}, handles[id].lastOnline(t))
	}

	seenByB := len(handles["B"].snapshot())
	d.BroadcastAll(EventOnlineUsers, d.OnlineUsers())
	assert.Len(t, handles["B"].snapshot(), seenByB, "disconnected handles are not pushed to")
}

func TestDispatcher_EndToEndScenario(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	hA, hB := &recordingHandle{}, &recordingHandle{}

	d.Connect("A", hA)
	d.Connect("B", hB)
	assert.ElementsMatch(t, []string{"A", "B"}, hA.lastOnline(t))
	assert.ElementsMatch(t, []string{"A", "B"}, hB.lastOnline(t))

	msg := testMessage{ID: "m1", SenderID: "A", ReceiverID: "B", Text: "hello"}
	require.True(t, d.Deliver("B", EventNewMessage, msg))

	got := hB.events(EventNewMessage)
	require.Len(t, got, 1)
	var delivered testMessage
	require.NoError(t, json.Unmarshal(got[0].Data, &delivered))
	assert.Equal(t, msg, delivered)

	d.Disconnect("B", hB)
	assert.Equal(t, []string{"A"}, hA.lastOnline(t))

	pushedToB := len(hB.snapshot())
	assert.False(t, d.Deliver("B", EventNewMessage, testMessage{ID: "m2", SenderID: "A", ReceiverID: "B"}))
	assert.Len(t, hB.snapshot(), pushedToB, "no push after disconnect")
	assert.Empty(t, hA.events(EventNewMessage))
}

func TestDispatcher_ShutdownClosesConnections(t *testing.T) {
	d := NewDispatcher(presence.NewRegistry(), Options{})
	hA, anon := &recordingHandle{}, &recordingHandle{}
	d.Connect("A", hA)
	d.Connect("", anon)

	d.Shutdown()

	for _, h := range []*recordingHandle{hA, anon} {
		closed, reason := h.isClosed()
		assert.True(t, closed)
		assert.Equal(t, ReasonShutdown, reason)
	}
	assert.Empty(t, d.OnlineUsers())

	assert.NotPanics(t, func() {
		d.Connect("B", &recordingHandle{})
		d.Shutdown()
	})
	assert.Empty(t, d.OnlineUsers())
}

func TestDispatcher_ConcurrentLifecycleAndDelivery(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(2)

		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("u%d", w)
				h := &recordingHandle{}
				d.Connect(id, h)
				d.Disconnect(id, h)
			}
		}(w)

		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Deliver(fmt.Sprintf("u%d", (w+1)%8), EventNewMessage, testMessage{ID: fmt.Sprint(i)})
			}
		}(w)
	}
	wg.Wait()

	assert.Empty(t, d.OnlineUsers())
}

func TestDispatcher_DeliverUnencodablePayload(t *testing.T) {
	d := newTestDispatcher(t, Options{})
	d.Connect("A", &recordingHandle{})

	assert.False(t, d.Deliver("A", EventNewMessage, make(chan int)))
}

func TestDispatcher_DeliveryMetrics(t *testing.T) {
	d := newTestDispatcher(t, Options{})

	delivered := metrics.RealtimeDeliveries.WithLabelValues(metrics.DeliveryDelivered)
	offline := metrics.RealtimeDeliveries.WithLabelValues(metrics.DeliveryOffline)
	dropped := metrics.RealtimeDeliveries.WithLabelValues(metrics.DeliveryDropped)

	baseDelivered := testutil.ToFloat64(delivered)
	baseOffline := testutil.ToFloat64(offline)
	baseDropped := testutil.ToFloat64(dropped)

	hB := &recordingHandle{}
	d.Connect("B", hB)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PresenceOnlineUsers))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RealtimeConnections))

	d.Deliver("B", EventNewMessage, testMessage{ID: "m1"})
	d.Deliver("C", EventNewMessage, testMessage{ID: "m2"})

	hB.mu.Lock()
	hB.pushErr = ErrSendQueueFull
	hB.mu.Unlock()
	d.Deliver("B", EventNewMessage, testMessage{ID: "m3"})

	assert.Equal(t, baseDelivered+1, testutil.ToFloat64(delivered))
	assert.Equal(t, baseOffline+1, testutil.ToFloat64(offline))
	assert.Equal(t, baseDropped+1, testutil.ToFloat64(dropped))

	d.Disconnect("B", hB)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PresenceOnlineUsers))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RealtimeConnections))
}
