package livekit

import (
	"context"
	"testing"

	"callkit/core"
	"callkit/transports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type otherMic struct{}

func (otherMic) WriteSamples([]int16) error { return nil }
func (otherMic) Close() error               { return nil }

func TestRoomNotConnected(t *testing.T) {
	r := NewRoom(WithLogger(core.NewNopLogger()))
	ctx := context.Background()

	assert.False(t, r.IsConnected())
	assert.Empty(t, r.LocalIdentity())
	assert.Nil(t, r.RemoteParticipants())
	assert.Equal(t, transports.MicrophoneState{}, r.MicrophoneState())

	assert.ErrorIs(t, r.SendText(ctx, "hi", "lk.chat"), ErrNotConnected)
	assert.ErrorIs(t, r.SetMicrophoneEnabled(ctx, true), ErrNotConnected)
	assert.NoError(t, r.Disconnect(ctx))
	assert.NoError(t, r.Disconnect(ctx))
}

func TestPrepareConnectionRejectsBadURL(t *testing.T) {
	r := NewRoom(WithLogger(core.NewNopLogger()))
	assert.Error(t, r.PrepareConnection(context.Background(), "not a url", "tok"))
	assert.Error(t, r.PrepareConnection(context.Background(), "wss://", "tok"))
}

func TestPublishForeignMicrophone(t *testing.T) {
	r := NewRoom(WithLogger(core.NewNopLogger()))
	assert.ErrorIs(t, r.PublishMicrophone(context.Background(), otherMic{}), ErrForeignMic)
}

func TestConnectHonoursCancelledContext(t *testing.T) {
	r := NewRoom(WithLogger(core.NewNopLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Connect(ctx, "ws://127.0.0.1:1", "tok")
	require.Error(t, err)
	assert.False(t, r.IsConnected())
}

func TestDispatchQueuesUntilReady(t *testing.T) {
	r := NewRoom(WithLogger(core.NewNopLogger()))
	r.gen = 1

	var order []string
	r.dispatch(1, func() { order = append(order, "track") })
	r.dispatch(2, func() { order = append(order, "stale") })
	assert.Empty(t, order)

	order = append(order, "connected")
	r.flushPending(1)
	r.dispatch(1, func() { order = append(order, "data") })

	assert.Equal(t, []string{"connected", "track", "data"}, order)
}
