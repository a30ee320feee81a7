package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

type memoryEventStore struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *memoryEventStore) CreateEvent(ctx context.Context, ev *domain.Event) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func TestNewEncodesPayload(t *testing.T) {
	ev := New("run_1", domain.EventTypeRunStart, domain.RunStartPayload{RunID: "run_1", TotalScenarios: 4})

	assert.Equal(t, "run_1", ev.RunID)
	assert.Equal(t, domain.EventTypeRunStart, ev.Type)
	assert.NotEmpty(t, ev.EventID)
	assert.NotZero(t, ev.Ts)

	var payload domain.RunStartPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, 4, payload.TotalScenarios)

	assert.Nil(t, New("run_1", domain.EventTypeComplete, nil).Payload)
}

func TestRecorderStoresAndSwallowsErrors(t *testing.T) {
	store := &memoryEventStore{}
	rec := NewRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Emit(ctx, New("run_1", domain.EventTypeCanceled, nil))
	require.Len(t, store.events, 1)

	store.err = errors.New("disk full")
	assert.NotPanics(t, func() {
		rec.Emit(context.Background(), New("run_1", domain.EventTypeComplete, nil))
	})
}

func TestMultiForwardsInOrder(t *testing.T) {
	var got []string
	record := func(name string) Sink {
		return Func(func(_ context.Context, ev domain.Event) {
			got = append(got, name+":"+string(ev.Type))
		})
	}

	m := Multi{record("a"), nil, record("b")}
	m.Emit(context.Background(), New("run_1", domain.EventTypeTurnUser, nil))

	assert.Equal(t, []string{"a:turn:user", "b:turn:user"}, got)
}

func TestBrokerDeliversUntilTerminalEvent(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("run_1")
	defer cancel()
	other, cancelOther := b.Subscribe("run_2")
	defer cancelOther()

	b.Emit(context.Background(), New("run_1", domain.EventTypeScenarioStart, nil))
	b.Emit(context.Background(), New("run_1", domain.EventTypeComplete, nil))
	b.Emit(context.Background(), New("run_1", domain.EventTypeTurnUser, nil))

	var types []domain.EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{domain.EventTypeScenarioStart, domain.EventTypeComplete}, types)
	assert.Equal(t, 0, b.Subscribers("run_1"))
	assert.Equal(t, 1, b.Subscribers("run_2"))
	assert.Len(t, other, 0)
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("run_1")
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers("run_1"))
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("run_1")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Emit(context.Background(), New("run_1", domain.EventTypeTurnAgent, nil))
	}
	assert.Len(t, ch, subscriberBuffer)
}
