package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableAddr is never listened on, so every dial/call against it
// fails fast with a transport error — enough to exercise the retry path
// without a real network fixture.
const unreachableAddr = "127.0.0.1:1"

func TestSendWithRetry_AttemptsOnPersistentFailure(t *testing.T) {
	c := NewClient(unreachableAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.SendWithRetry(ctx, &Message{Kind: KindData, Data: []byte("x")}, 2, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSendWithRetry_ReusesOneCorrelationIDAcrossAttempts(t *testing.T) {
	c := NewClient(unreachableAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := &Message{Kind: KindData, Data: []byte("x")}
	require.Empty(t, msg.CorrelationID)

	_, _ = c.SendWithRetry(ctx, msg, 2, time.Millisecond)

	assert.NotEmpty(t, msg.CorrelationID, "SendMessage must assign a correlation id on first use")

	first := msg.CorrelationID
	_, _ = c.SendWithRetry(ctx, msg, 2, time.Millisecond)
	assert.Equal(t, first, msg.CorrelationID, "later attempts must keep the id assigned on the first one")
}

func TestFabric_UnknownPeer(t *testing.T) {
	f := &Fabric{peers: map[broker.NodeID]*Client{1: NewClient(unreachableAddr)}}

	c, err := f.Client(1)
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = f.Client(2)
	assert.ErrorIs(t, err, ErrUnknownPeer)
}
