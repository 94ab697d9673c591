package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/growfi/growfi-server/internal/queue"
)

// silentBroker accepts connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		_ = ln.Close()
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				<-done
				_ = conn.Close()
			}()
		}
	}()
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	p := NewQueuePublisher(silentBroker(t), zaptest.NewLogger(t))
	p.DialTimeout = 300 * time.Millisecond

	start := time.Now()
	err := p.PublishPlotsPurchased(context.Background(), queue.PlotsPurchasedEvent{EventID: "ev-1"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPublishHonoursContextDeadline(t *testing.T) {
	p := NewQueuePublisher(silentBroker(t), zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.PublishPlotsPurchased(ctx, queue.PlotsPurchasedEvent{EventID: "ev-2"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), DefaultDialTimeout)
}

func TestDialTimeout(t *testing.T) {
	p := &QueuePublisher{}
	d, err := p.dialTimeout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultDialTimeout, d)

	p.DialTimeout = time.Second
	d, err = p.dialTimeout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	d, err = p.dialTimeout(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, d, 100*time.Millisecond)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = p.dialTimeout(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
