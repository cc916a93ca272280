package rpc

import (
	"testing"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_CloneIsIndependent(t *testing.T) {
	original := &Message{
		Kind: KindForwards,
		Forwards: &Forwards{
			From: "c1",
			Publish: broker.Publish{
				Topic:   "a/b",
				Payload: []byte("hello"),
			},
		},
	}

	clone := original.Clone()
	require.NotSame(t, original, clone)
	require.NotSame(t, original.Forwards, clone.Forwards)
	assert.Equal(t, original.Forwards.Publish.Payload, clone.Forwards.Publish.Payload)

	clone.Forwards.Publish.Payload[0] = 'H'
	assert.Equal(t, byte('h'), original.Forwards.Publish.Payload[0], "mutating the clone must not affect the original")
}
