package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spine_trainer/internal/stage"
)

type captureSink struct {
	mu      sync.Mutex
	samples []stage.ProcessedSample
}

func (c *captureSink) Deliver(s stage.ProcessedSample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *captureSink) snapshot() []stage.ProcessedSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stage.ProcessedSample(nil), c.samples...)
}

func TestMailboxOverwrites(t *testing.T) {
	var box Mailbox
	assert.Nil(t, box.Peek())

	box.Put(stage.ProcessedSample{Timestamp: 1})
	box.Put(stage.ProcessedSample{Timestamp: 2})

	got := box.Peek()
	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.Timestamp)

	// Peek does not consume.
	assert.Equal(t, 2.0, box.Peek().Timestamp)
}

func TestSchedulerDeliversLatest(t *testing.T) {
	var box Mailbox
	sink := &captureSink{}
	sched := NewScheduler(&box, Consumer{Name: "display", Interval: time.Millisecond, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	box.Put(stage.ProcessedSample{Timestamp: 42})
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 42.0, sink.snapshot()[0].Timestamp)
}

func TestSchedulerSkipsDuplicates(t *testing.T) {
	var box Mailbox
	box.Put(stage.ProcessedSample{Timestamp: 7})

	sink := &captureSink{}
	sched := NewScheduler(&box, Consumer{Name: "telemetry", Interval: time.Millisecond, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// Many ticks, one sample: exactly one delivery.
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].Timestamp)
}

func TestSchedulerIndependentConsumers(t *testing.T) {
	var box Mailbox
	fast := &captureSink{}
	slow := &captureSink{}
	sched := NewScheduler(&box,
		Consumer{Name: "fast", Interval: time.Millisecond, Sink: fast},
		Consumer{Name: "slow", Interval: 5 * time.Millisecond, Sink: slow},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	for i := 0; i < 20; i++ {
		box.Put(stage.ProcessedSample{Timestamp: float64(i)})
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	// Both made progress; neither saw the same timestamp twice.
	for name, sink := range map[string]*captureSink{"fast": fast, "slow": slow} {
		got := sink.snapshot()
		assert.NotEmpty(t, got, name)
		seen := make(map[float64]bool)
		for _, s := range got {
			assert.False(t, seen[s.Timestamp], "%s delivered timestamp %v twice", name, s.Timestamp)
			seen[s.Timestamp] = true
		}
	}
}
