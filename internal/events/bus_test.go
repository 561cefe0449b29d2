package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(TypeStatsUpdate, map[string]int{"active": 3})

	for _, ch := range []<-chan Event{ch1, ch2} {
		event := <-ch
		assert.Equal(t, TypeStatsUpdate, event.Type)
		assert.False(t, event.Timestamp.IsZero())
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	cancel()
	assert.Equal(t, 0, bus.SubscriberCount())

	// cancelar duas vezes não pode entrar em pânico
	cancel()
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// estoura o buffer sem consumir; o publicador nunca bloqueia
	for i := 0; i < 200; i++ {
		bus.Publish(TypeStatsUpdate, i)
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Less(t, received, 200)
			assert.Greater(t, received, 0)
			return
		}
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()
	bus.Publish(TypeStatsUpdate, nil)

	// canal fechado sem eventos entregues
	_, open := <-ch
	assert.False(t, open)
}
