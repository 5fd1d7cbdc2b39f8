package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector собирает доставленные события
type collector struct {
	mu     sync.Mutex
	events []*Envelope
}

func (c *collector) handle(_ context.Context, ev *Envelope) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (c *collector) last() *Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func testMine(t *testing.T) *mine.Mine {
	t.Helper()
	origin := world.NewPosition(10, 64, 10, "world")
	v, err := geometry.DeriveVolume(origin, 5, 5)
	require.NoError(t, err)
	return mine.New(mine.Params{
		Owner:         mine.Owner{ID: uuid.New(), Name: "P"},
		Template:      "DIAMOND_MINE",
		DisplayName:   "P's Diamond Mine",
		Volume:        v,
		ResetPercent:  25,
		ResetTeleport: origin.Offset(0.5, 2, 0.5),
		Composition:   composition.Single(world.Stone),
	})
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventMineCreated}}, c.handle)
	require.NoError(t, err)

	for _, typ := range []string{EventMineCreated, EventMineDeleted, EventMineCreated} {
		ev, err := NewEnvelope("test", typ, 5, MessagePayload{RecipientName: "P"})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	// Close дожидается доставки
	require.NoError(t, bus.Close())
	assert.Equal(t, []string{EventMineCreated, EventMineCreated}, c.types())

	stats := bus.Metrics()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(2), stats.Consumed)
	assert.Zero(t, stats.InFlight)
}

func TestMemoryBus_SourceFilterAndUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	c := &collector{}
	sub, err := bus.Subscribe(context.Background(), Filter{Sources: []string{"a"}}, c.handle)
	require.NoError(t, err)

	evA, _ := NewEnvelope("a", EventMineReset, 5, nil)
	evB, _ := NewEnvelope("b", EventMineReset, 5, nil)
	require.NoError(t, bus.Publish(context.Background(), evA))
	require.NoError(t, bus.Publish(context.Background(), evB))

	assert.Eventually(t, func() bool { return bus.Metrics().InFlight == 0 && len(c.types()) == 1 }, time.Second, 5*time.Millisecond)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), evA))
	require.NoError(t, bus.Close())
	assert.Len(t, c.types(), 1)
}

func TestMemoryBus_DropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	require.NoError(t, err)

	first, _ := NewEnvelope("t", EventHologramRefresh, 1, nil)
	require.NoError(t, bus.Publish(context.Background(), first))
	<-started

	// Буфер на одно событие: второе занимает его, третье отбрасывается
	second, _ := NewEnvelope("t", EventHologramRefresh, 1, nil)
	third, _ := NewEnvelope("t", EventHologramRefresh, 1, nil)
	require.NoError(t, bus.Publish(context.Background(), second))
	require.NoError(t, bus.Publish(context.Background(), third))

	assert.Equal(t, uint64(1), bus.Metrics().Dropped)

	// Высокий приоритет ждёт места и уважает отмену контекста
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	urgent, _ := NewEnvelope("t", EventMineDeleted, 9, nil)
	assert.ErrorIs(t, bus.Publish(ctx, urgent), context.DeadlineExceeded)

	close(release)
	require.NoError(t, bus.Close())
	assert.Equal(t, uint64(2), bus.Metrics().Consumed)
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	ev, _ := NewEnvelope("t", EventMineReset, 5, nil)
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMessenger(t *testing.T) {
	bus := NewMemoryBus(16)
	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)

	m := testMine(t)
	messenger := NewMessenger(bus, "")
	messenger.MineCreated(context.Background(), m.Owner(), m)
	messenger.MineDeleted(context.Background(), m.Owner(), m)
	messenger.MineNotFound(context.Background(), m.Owner(), "nope")
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{EventMineCreated, EventMineDeleted, EventMineNotFound}, c.types())

	last := c.last()
	assert.Equal(t, "plotmines", last.Source)
	var msg MessagePayload
	require.NoError(t, last.Decode(&msg))
	assert.Equal(t, "nope", msg.RequestedID)
	assert.Equal(t, "P", msg.RecipientName)
	assert.Equal(t, m.Owner().ID.String(), msg.RecipientID)
}

func TestHolograms(t *testing.T) {
	bus := NewMemoryBus(16)
	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventHologramCreate}}, c.handle)
	require.NoError(t, err)

	m := testMine(t)
	h := NewHolograms(bus, "host")
	h.CreateHologram(context.Background(), m)
	h.RefreshHologram(context.Background(), m)
	h.RemoveHologram(context.Background(), m)
	require.NoError(t, bus.Close())

	require.Equal(t, []string{EventHologramCreate}, c.types())
	var payload HologramPayload
	require.NoError(t, c.last().Decode(&payload))
	assert.Equal(t, m.ID().String(), payload.MineID)
	assert.Equal(t, "P's Diamond Mine", payload.DisplayName)
	assert.Equal(t, HologramPosition(m), payload.Position)
	assert.Equal(t, 25.0, payload.ResetPercent)
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(16)
	reg := prometheus.NewRegistry()
	exp := NewMetricsExporter(bus, reg)

	for i := 0; i < 3; i++ {
		ev, _ := NewEnvelope("t", EventMineReset, 5, nil)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	require.NoError(t, bus.Close())

	prev := exp.collect(Stats{})
	assert.Equal(t, 3.0, testutil.ToFloat64(exp.published))
	exp.collect(prev)
	assert.Equal(t, 3.0, testutil.ToFloat64(exp.published), "повторный сбор не должен удваивать счётчик")

	// Повторная регистрация в том же регистре не паникует
	again := NewMetricsExporter(bus, reg)
	assert.Equal(t, 3.0, testutil.ToFloat64(again.published))
	exp.Stop()
}
