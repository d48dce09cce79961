package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	received := make(chan Event, 1)
	b.Subscribe(KindSystemOk, func(e Event) { received <- e })

	b.PublishFrom(KindSystemOk, "supervisor")

	select {
	case e := <-received:
		assert.Equal(t, KindSystemOk, e.Kind)
		assert.Equal(t, "supervisor", e.Sender)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	var count int
	var mu sync.Mutex
	tok := b.Subscribe(KindNoiseDetected, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.PublishFrom(KindNoiseDetected, "wake")
	b.Unsubscribe(tok)
	b.PublishFrom(KindNoiseDetected, "wake")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestHandlerPanicDoesNotPropagateOrBlockOthers(t *testing.T) {
	b := New(nil)
	done := make(chan struct{}, 1)
	b.Subscribe(KindSystemError, func(Event) { panic("boom") })
	b.Subscribe(KindSystemError, func(Event) { done <- struct{}{} })

	require.NotPanics(t, func() {
		b.PublishFrom(KindSystemError, "agent")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran")
	}
}

func TestResubscribeDuringDispatchDoesNotDeadlock(t *testing.T) {
	b := New(nil)
	finished := make(chan struct{})
	b.Subscribe(KindConfigChanged, func(Event) {
		b.Subscribe(KindConfigChanged, func(Event) {})
		close(finished)
	})

	go b.PublishFrom(KindConfigChanged, "config")

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("publish deadlocked when handler re-subscribed")
	}
}

func TestSubscribeNamedFunctionTwiceDedupsAndDeliversOnce(t *testing.T) {
	b := New(nil)
	var count int
	var mu sync.Mutex
	handler := func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	first := b.Subscribe(KindSystemOk, handler)
	second := b.Subscribe(KindSystemOk, handler)
	assert.Equal(t, first, second, "re-registering the same handler returns the existing Token")

	b.PublishFrom(KindSystemOk, "supervisor")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "handler should only be invoked once despite two Subscribe calls")
}

func TestSkipLoggingDefaultsForTalkLevel(t *testing.T) {
	level := 120
	e := New(KindTalkLevel, "agent", TalkLevelPayload{Level: &level})
	assert.True(t, e.SkipLogging)

	e2 := New(KindWakeWordDetected, "wake", WakeWordPayload{ModelID: "hey-noia"})
	assert.False(t, e2.SkipLogging)
}
